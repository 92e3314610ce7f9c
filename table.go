package bib

import (
	"sync"
	"time"

	"github.com/nat64lab/bib/internal/dbmetrics"
	"github.com/nat64lab/bib/internal/index"
	"github.com/nat64lab/bib/internal/obslog"
	"github.com/nat64lab/bib/internal/queue"
)

// Table is the per-protocol store: two BIB indices (keyed by the inside
// and outside transport addresses), three timer lists, and — for TCP
// only — the Simultaneous-Open packet queue. All mutation happens under
// mu, held in a mode that also excludes a concurrent timer sweep.
type Table struct {
	mu sync.Mutex

	proto Protocol
	cfg   Config

	v6 *index.Tree[*BIBEntry] // keyed by Src6
	v4 *index.Tree[*BIBEntry] // keyed by Src4

	sessionCount int
	est, trans, syn4 timerList

	pktQueue *queue.Queue // TCP only; nil for UDP/ICMP
	pktCount int

	pools   *entryPools
	log     *obslog.Logger
	metrics *dbmetrics.Metrics
}

// newTable constructs an empty Table for proto.
func newTable(proto Protocol, cfg Config, pools *entryPools, log *obslog.Logger, metrics *dbmetrics.Metrics) *Table {
	t := &Table{
		proto:   proto,
		cfg:     cfg,
		v6:      index.New(bibLessBySrc6),
		v4:      index.New(bibLessBySrc4),
		pools:   pools,
		log:     log,
		metrics: metrics,
	}
	t.est.kind = TimerEst
	t.trans.kind = TimerTrans
	t.syn4.kind = TimerSyn4
	if proto == ProtoTCP {
		t.pktQueue = queue.New(cfg.MaxStoredPkts)
	}
	return t
}

// SessionCount returns the number of sessions currently tracked by this
// table.
func (t *Table) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionCount
}

// BIBCount returns the number of BIB entries currently tracked by this
// table.
func (t *Table) BIBCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.v6.Len()
}

// StoredPacketCount returns the table's live stored-packet count.
func (t *Table) StoredPacketCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pktCount
}

// --- internal helpers, all callers must already hold t.mu ---

func (t *Table) timerFor(kind TimerKind) *timerList {
	switch kind {
	case TimerEst:
		return &t.est
	case TimerTrans:
		return &t.trans
	default:
		return &t.syn4
	}
}

// newBIBEntry allocates (from the pool) and initializes a BIB entry. It
// does not insert it into either index.
func (t *Table) newBIBEntry(src6, src4 TransportAddr, static bool) *BIBEntry {
	e := t.pools.getEntry()
	e.Src6 = src6
	e.Src4 = src4
	e.Proto = t.proto
	e.IsStatic = static
	if e.sessions == nil {
		e.sessions = index.New(sessionLess)
	}
	return e
}

// insertBIBEntry commits a new entry into both indices.
func (t *Table) insertBIBEntry(e *BIBEntry, slot6, slot4 index.Slot[*BIBEntry]) {
	t.v6.Commit(slot6, e)
	t.v4.Commit(slot4, e)
	if t.log.Enabled() {
		t.log.Mapped(e.Src6.String(), e.Src4.String())
	}
	if t.metrics != nil {
		t.metrics.SetBIBEntries(t.proto.String(), t.v6.Len())
	}
}

// detachBIBEntry removes e from both indices. It does not touch e's
// sessions; the caller is responsible for having emptied them (or for
// cascading their removal) first.
func (t *Table) detachBIBEntry(e *BIBEntry) {
	t.v6.Erase(e)
	t.v4.Erase(e)
	if t.log.Enabled() {
		t.log.Forgot(e.Src6.String(), e.Src4.String())
	}
	if t.metrics != nil {
		t.metrics.SetBIBEntries(t.proto.String(), t.v6.Len())
	}
}

// createSession allocates, initializes, attaches and timer-lists a new
// session on e, returning it.
func (t *Table) createSession(e *BIBEntry, dst6, dst4 TransportAddr, state TCPState, now time.Time, timer TimerKind) *Session {
	if t.proto == ProtoICMP {
		// dst4.l4 is always the BIB entry's own identifier for ICMP (§3);
		// normalize before storing so findSession's equally-patched
		// lookup key always matches the stored node.
		dst4.Port = e.Src4.Port
	}

	s := t.pools.getSession()
	s.Dst6 = dst6
	s.Dst4 = dst4
	s.State = state
	s.UpdateTime = now
	s.bib = e

	e.sessions.Insert(s)
	t.timerFor(timer).pushTail(s)
	t.sessionCount++
	t.pktCountAdjust(s, 1)

	if t.log.Enabled() {
		t.log.AddedSession(e.Src6.String(), e.Src4.String(), dst6.String(), dst4.String())
	}
	if t.metrics != nil {
		t.metrics.SetSessions(t.proto.String(), t.sessionCount)
	}
	return s
}

// destroySession detaches s from its BIB entry's session tree and its
// timer list, then finishes the teardown via destroySessionDetached.
// reason tags the sessions-closed metric ("rm", "flush", "rst", ...).
func (t *Table) destroySession(s *Session, reason string) {
	t.timerFor(s.Expirer).remove(s)
	t.destroySessionDetached(s, reason)
}

// destroySessionDetached finishes tearing down a session that has
// already been unlinked from its timer list (the case after a
// timerList.sweep action): removes it from its BIB entry's session
// tree, decrements counters, cascades BIB removal if the entry is now
// both sessionless and non-static, and returns both the session and (if
// cascaded) the BIB entry to their pools.
//
// Pooling happens here, still under the table lock: it is O(1) and
// never sleeps, so it introduces no suspension point inside the lock.
// The bulk teardown paths (rm, rm_range, flush) go through cascadeDetach
// instead, which walks each entry's sessions and pools them under the
// same lock.
func (t *Table) destroySessionDetached(s *Session, reason string) {
	e := s.bib
	e.sessions.Erase(s)
	t.sessionCount--
	t.pktCountAdjust(s, -1)

	if t.log.Enabled() {
		t.log.ForgotSession(e.Src6.String(), e.Src4.String(), s.Dst6.String(), s.Dst4.String())
	}
	if t.metrics != nil {
		t.metrics.SetSessions(t.proto.String(), t.sessionCount)
		t.metrics.IncSessionsClosed(t.proto.String(), reason)
	}

	bibGone := !e.IsStatic && e.sessions.Len() == 0
	if bibGone {
		t.detachBIBEntry(e)
	}

	t.pools.putSession(s)
	if bibGone {
		t.pools.putEntry(e)
	}
}

// pktCountAdjust maintains the table's stored-packet count: sessions
// with a stored packet, plus type-1 queue entries.
func (t *Table) pktCountAdjust(s *Session, delta int) {
	if s.Stored != nil {
		t.pktCount += delta
	}
}

// attachStoredPacket attaches pkt to s as its (type-2) held packet,
// adjusting table.pkt_count.
func (t *Table) attachStoredPacket(s *Session, pkt *StoredPacket) {
	s.Stored = pkt
	t.pktCount++
}

// findSession looks up a session keyed by dst4 within e's session tree.
// For ICMP, dst4.Port is patched to the BIB entry's Src4 port (the
// identifier) before comparing.
func (t *Table) findSession(e *BIBEntry, dst4 TransportAddr) (*Session, bool) {
	if t.proto == ProtoICMP {
		dst4.Port = e.Src4.Port
	}
	return e.sessions.Find(&Session{Dst4: dst4})
}

// --- timer sweep ---

// sweep expires sessions past their timeout on all three timer lists,
// plus (for TCP) harvests timed-out type-1 packets from the queue, and
// returns the probe/ICMP emissions the caller must drain after dropping
// the table lock.
func (t *Table) sweep(now time.Time) []postSweepEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	var events []postSweepEvent
	events = append(events, t.sweepList(&t.est, now, t.cfg.estTimeout(t.proto), t.estFate)...)
	events = append(events, t.sweepList(&t.trans, now, t.cfg.Trans, t.transFate)...)
	events = append(events, t.sweepList(&t.syn4, now, t.cfg.Syn4, t.syn4Fate)...)

	if t.pktQueue != nil {
		timedOut := t.pktQueue.PrepareClean(now, t.cfg.Syn4, nil)
		for _, e := range timedOut {
			t.pktCount--
			if e.IsProbe {
				continue
			}
			events = append(events, postSweepEvent{
				kind:   postSweepICMP,
				proto:  t.proto,
				src4:   fromAddrPort(e.Src4),
				dst4:   fromAddrPort(e.Dst4),
				packet: e.Packet,
			})
		}
	}
	return events
}

// sweepList runs one timer list's expiration pass, turning each acted
// session into zero or one postSweepEvent.
func (t *Table) sweepList(l *timerList, now time.Time, timeout time.Duration, fate func(*Session, time.Time) FateDecision) []postSweepEvent {
	actions := l.sweep(now, timeout, func(s *Session) FateDecision { return fate(s, now) })

	var events []postSweepEvent
	for _, a := range actions {
		if ev, ok := t.applyFateDecision(a.session, a.decision); ok {
			events = append(events, ev)
		}
	}
	return events
}

// applyFateDecision re-homes or tears down a session that timerList.sweep
// has already unlinked from its origin list, per the Fate it was given.
func (t *Table) applyFateDecision(s *Session, d FateDecision) (postSweepEvent, bool) {
	s.State = d.NewState

	switch d.Fate {
	case FateRM:
		src4, dst4, pkt := s.bib.Src4, s.Dst4, s.Stored
		t.destroySessionDetached(s, "expired")
		if pkt != nil {
			return postSweepEvent{kind: postSweepICMP, proto: t.proto, src4: src4, dst4: dst4, packet: pkt.Packet}, true
		}
		return postSweepEvent{}, false

	case FateICMPUnreachable:
		src4, dst4, pkt := s.bib.Src4, s.Dst4, s.Stored
		t.destroySessionDetached(s, "syn4-timeout")
		var data []byte
		if pkt != nil {
			data = pkt.Packet
		}
		return postSweepEvent{kind: postSweepICMP, proto: t.proto, src4: src4, dst4: dst4, packet: data}, true

	case FateProbe:
		s.UpdateTime = d.UpdateTime
		t.trans.pushTail(s)
		if t.metrics != nil {
			t.metrics.SetSessions(t.proto.String(), t.sessionCount)
		}
		return postSweepEvent{kind: postSweepProbe, proto: t.proto, session: s.Snapshot()}, true

	case FateTimerEst:
		s.UpdateTime = d.UpdateTime
		t.est.pushTail(s)
		return postSweepEvent{}, false

	case FateTimerTrans:
		s.UpdateTime = d.UpdateTime
		t.trans.pushTail(s)
		return postSweepEvent{}, false

	case FateTimerSlow:
		s.UpdateTime = d.UpdateTime
		t.timerFor(d.TimerType).insertSorted(s)
		return postSweepEvent{}, false

	default: // FatePreserve, FateDrop: nothing further to do
		return postSweepEvent{}, false
	}
}

// --- TCP collision handling, shared by the 6->4 and 4->6 paths ---

// applyCollisionDecision acts on the fate a state-machine callback
// returned for a session that collided with an inbound packet (as
// opposed to a timer sweep): it re-homes, probes, or tears the session
// down, returning any post-unlock emissions plus the snapshot (or error)
// the data-plane caller should see.
func (t *Table) applyCollisionDecision(s *Session, d FateDecision) ([]postSweepEvent, SessionSnapshot, error) {
	switch d.Fate {
	case FateRM:
		src4, dst4, pkt := s.bib.Src4, s.Dst4, s.Stored
		t.destroySession(s, "tcp-collision")
		var events []postSweepEvent
		if pkt != nil {
			events = append(events, postSweepEvent{kind: postSweepICMP, proto: t.proto, src4: src4, dst4: dst4, packet: pkt.Packet})
		}
		return events, SessionSnapshot{}, wrapf(ErrInvalid, "bib: session removed by state-machine collision")

	case FateProbe:
		t.moveSession(s, &t.trans, d)
		return []postSweepEvent{{kind: postSweepProbe, proto: t.proto, session: s.Snapshot()}}, s.Snapshot(), nil

	case FateTimerEst:
		t.moveSession(s, &t.est, d)
		return nil, s.Snapshot(), nil

	case FateTimerTrans:
		t.moveSession(s, &t.trans, d)
		return nil, s.Snapshot(), nil

	case FateTimerSlow:
		t.timerFor(s.Expirer).remove(s)
		s.State = d.NewState
		s.UpdateTime = d.UpdateTime
		t.timerFor(d.TimerType).insertSorted(s)
		return nil, s.Snapshot(), nil

	case FatePreserve:
		return nil, s.Snapshot(), nil

	default: // FateDrop
		return nil, SessionSnapshot{}, wrapf(ErrInvalid, "bib: state machine rejected packet")
	}
}

// moveSession detaches s from its current timer list, applies d's state
// and update_time, and appends it to dest.
func (t *Table) moveSession(s *Session, dest *timerList, d FateDecision) {
	t.timerFor(s.Expirer).remove(s)
	s.State = d.NewState
	s.UpdateTime = d.UpdateTime
	dest.pushTail(s)
}

// estFate is the default fate for an est-list timeout: for TCP, an idle
// ESTABLISHED session gets a keepalive probe (and moves to trans) rather
// than being dropped outright; every other case (UDP, ICMP, and any TCP
// session found on est outside ESTABLISHED) simply expires.
func (t *Table) estFate(s *Session, now time.Time) FateDecision {
	if t.proto == ProtoTCP && s.State == StateEstablished {
		return FateDecision{Fate: FateProbe, NewState: StateEstablished, UpdateTime: now, HasStored: s.Stored != nil, TimerType: TimerTrans}
	}
	return FateDecision{Fate: FateRM, NewState: s.State, UpdateTime: now}
}

// transFate is the default fate for a trans-list timeout: both trans and
// syn4 default to RM.
func (t *Table) transFate(s *Session, now time.Time) FateDecision {
	return FateDecision{Fate: FateRM, NewState: s.State, UpdateTime: now}
}

// syn4Fate is the default fate for a syn4-list timeout: a type-2 session
// (one with a stored SYN) gets its packet turned into an ICMP
// Port-Unreachable rather than silently dropped.
func (t *Table) syn4Fate(s *Session, now time.Time) FateDecision {
	if s.Stored != nil {
		return FateDecision{Fate: FateICMPUnreachable, NewState: s.State, UpdateTime: now}
	}
	return FateDecision{Fate: FateRM, NewState: s.State, UpdateTime: now}
}
