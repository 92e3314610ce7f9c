package bib

import "time"

// Fate is the decision returned by a timer-sweep fate callback, and,
// reused for the TCP collision callback, by the per-packet
// state-machine transition.
//
// FATE_PROBE covers two distinct situations that don't belong under one
// value — a keepalive probe on an idle ESTABLISHED session, and an ICMP
// Port-Unreachable delivery for a timed-out Simultaneous-Open session —
// and ICMP errors aren't supposed to fall through into FATE_TIMER_TRANS
// the way a plain probe does. This implementation splits them:
// FateProbe behaves like FateTimerTrans plus a queued keepalive send,
// while FateICMPUnreachable always removes the session and queues an
// ICMP error instead.
type Fate uint8

const (
	// FateRM removes the session (and cascade-removes its BIB entry if
	// non-static and now sessionless).
	FateRM Fate = iota
	// FateProbe behaves like FateTimerTrans, additionally queuing a TCP
	// keepalive probe.
	FateProbe
	// FateICMPUnreachable removes the session and queues an ICMP
	// Port-Unreachable for its stored packet; never falls into TRANS.
	FateICMPUnreachable
	// FateTimerEst moves the session to the est timer list.
	FateTimerEst
	// FateTimerTrans moves the session to the trans timer list.
	FateTimerTrans
	// FateTimerSlow inserts the session, in update_time sort order, into
	// the timer list named by FateDecision.TimerType — used by the
	// session-sync import path, which may carry an arbitrary
	// update_time.
	FateTimerSlow
	// FatePreserve leaves the session untouched.
	FatePreserve
	// FateDrop signals the caller should treat the input as invalid.
	FateDrop
)

// FateDecision is the full outcome of a fate or collision callback: the
// session's next TCP state, its refreshed update_time, whether it should
// carry a stored packet forward, which timer list to act on, and the
// governing Fate.
type FateDecision struct {
	Fate       Fate
	NewState   TCPState
	UpdateTime time.Time
	HasStored  bool
	TimerType  TimerKind // meaningful only when Fate == FateTimerSlow
}

// timerList is an insertion-ordered FIFO of sessions sorted by
// UpdateTime: touching a session detaches and re-appends it at the tail,
// so list order reflects UpdateTime monotonically for ordinary touches.
type timerList struct {
	kind       TimerKind
	head, tail *Session
	size       int
}

func (l *timerList) len() int { return l.size }

// pushTail appends s to the end of the list and marks it as living on
// this list.
func (l *timerList) pushTail(s *Session) {
	s.Expirer = l.kind
	s.listPrev, s.listNext = l.tail, nil
	if l.tail != nil {
		l.tail.listNext = s
	} else {
		l.head = s
	}
	l.tail = s
	l.size++
}

// remove detaches s from the list it is presumed to be linked into.
func (l *timerList) remove(s *Session) {
	if s.listPrev != nil {
		s.listPrev.listNext = s.listNext
	} else {
		l.head = s.listNext
	}
	if s.listNext != nil {
		s.listNext.listPrev = s.listPrev
	} else {
		l.tail = s.listPrev
	}
	s.listPrev, s.listNext = nil, nil
	l.size--
}

// touch refreshes s's update_time and moves it to the tail.
func (l *timerList) touch(s *Session, now time.Time) {
	l.remove(s)
	s.UpdateTime = now
	l.pushTail(s)
}

// insertSorted inserts s keeping the list sorted by UpdateTime ascending,
// walking back from the tail — the expected insertion point for the
// session-sync import path, whose arriving update_times cluster near
// "now" and need an explicit insertion sort to preserve the
// sorted-by-update_time invariant other callers rely on.
func (l *timerList) insertSorted(s *Session) {
	s.Expirer = l.kind
	cur := l.tail
	for cur != nil && cur.UpdateTime.After(s.UpdateTime) {
		cur = cur.listPrev
	}
	if cur == nil {
		s.listPrev, s.listNext = nil, l.head
		if l.head != nil {
			l.head.listPrev = s
		} else {
			l.tail = s
		}
		l.head = s
	} else {
		s.listPrev, s.listNext = cur, cur.listNext
		if cur.listNext != nil {
			cur.listNext.listPrev = s
		} else {
			l.tail = s
		}
		cur.listNext = s
	}
	l.size++
}

// sweep walks the list from the head while now - UpdateTime >= timeout,
// invoking fate for each expired session. A FatePreserve decision stops
// the sweep and leaves that session linked and unreported. Every other
// decision detaches the session from l and is returned as a sweepAction.
//
// sweep runs entirely under the table's lock; the table applies the
// returned actions (re-homing or tearing down each session) while still
// holding it, and only the resulting probe/ICMP emissions are drained
// after unlock.
func (l *timerList) sweep(now time.Time, timeout time.Duration, fate func(*Session) FateDecision) (acted []sweepAction) {
	for l.head != nil && now.Sub(l.head.UpdateTime) >= timeout {
		s := l.head
		decision := fate(s)
		if decision.Fate == FatePreserve {
			// the head stays put, so walking on would spin on it.
			return acted
		}
		acted = append(acted, sweepAction{session: s, decision: decision})

		switch decision.Fate {
		case FateRM, FateICMPUnreachable:
			l.remove(s)
		case FateProbe, FateTimerTrans:
			// handled by the table, which owns the sibling lists and
			// moves s there; here we only ever detach from l.
			l.remove(s)
		case FateTimerEst:
			l.remove(s)
		case FateTimerSlow:
			l.remove(s)
		case FateDrop:
			l.remove(s)
		}
	}
	return acted
}

// sweepAction pairs an acted-upon session with the decision that acted on
// it, so the table can route it to the right sibling list or turn it into
// a post-unlock emission.
type sweepAction struct {
	session  *Session
	decision FateDecision
}
