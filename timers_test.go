package bib

import (
	"testing"
	"time"
)

func newTestSession(update time.Time) *Session {
	return &Session{UpdateTime: update}
}

func TestTimerListPushTailOrder(t *testing.T) {
	l := &timerList{kind: TimerEst}
	a, b, c := newTestSession(time.Time{}), newTestSession(time.Time{}), newTestSession(time.Time{})
	l.pushTail(a)
	l.pushTail(b)
	l.pushTail(c)

	if l.len() != 3 {
		t.Fatalf("len() = %d, want 3", l.len())
	}
	if l.head != a || l.tail != c {
		t.Fatalf("pushTail should keep insertion order head->tail")
	}
	for _, s := range []*Session{a, b, c} {
		if s.Expirer != TimerEst {
			t.Fatalf("pushTail should stamp Expirer to the list's kind")
		}
	}
}

func TestTimerListRemoveMiddle(t *testing.T) {
	l := &timerList{kind: TimerEst}
	a, b, c := newTestSession(time.Time{}), newTestSession(time.Time{}), newTestSession(time.Time{})
	l.pushTail(a)
	l.pushTail(b)
	l.pushTail(c)

	l.remove(b)

	if l.len() != 2 {
		t.Fatalf("len() after remove = %d, want 2", l.len())
	}
	if a.listNext != c || c.listPrev != a {
		t.Fatalf("remove should relink neighbors around the removed session")
	}
}

func TestTimerListTouchMovesToTail(t *testing.T) {
	l := &timerList{kind: TimerEst}
	a, b := newTestSession(time.Unix(0, 0)), newTestSession(time.Unix(0, 0))
	l.pushTail(a)
	l.pushTail(b)

	now := time.Unix(100, 0)
	l.touch(a, now)

	if l.tail != a {
		t.Fatalf("touch should move the touched session to the tail")
	}
	if !a.UpdateTime.Equal(now) {
		t.Fatalf("touch should refresh UpdateTime")
	}
}

func TestTimerListInsertSortedKeepsOrder(t *testing.T) {
	l := &timerList{kind: TimerSyn4}
	base := time.Unix(1000, 0)
	early := newTestSession(base)
	late := newTestSession(base.Add(10 * time.Second))
	l.pushTail(early)
	l.pushTail(late)

	mid := newTestSession(base.Add(5 * time.Second))
	l.insertSorted(mid)

	var order []*Session
	for s := l.head; s != nil; s = s.listNext {
		order = append(order, s)
	}
	if len(order) != 3 || order[0] != early || order[1] != mid || order[2] != late {
		t.Fatalf("insertSorted produced out-of-order list")
	}
}

func TestTimerListSweepStopsAtFirstUnexpired(t *testing.T) {
	l := &timerList{kind: TimerEst}
	now := time.Now()
	expired := newTestSession(now.Add(-10 * time.Minute))
	fresh := newTestSession(now)
	l.pushTail(expired)
	l.pushTail(fresh)

	var seen []*Session
	acted := l.sweep(now, 5*time.Minute, func(s *Session) FateDecision {
		seen = append(seen, s)
		return FateDecision{Fate: FateRM, UpdateTime: now}
	})

	if len(acted) != 1 || acted[0].session != expired {
		t.Fatalf("sweep should act only on the expired head, got %d actions", len(acted))
	}
	if l.len() != 1 || l.head != fresh {
		t.Fatalf("sweep should leave the unexpired session in place")
	}
}

func TestTimerListSweepPreserveStopsWalk(t *testing.T) {
	l := &timerList{kind: TimerSyn4}
	now := time.Now()
	a := newTestSession(now.Add(-time.Hour))
	b := newTestSession(now.Add(-time.Hour))
	l.pushTail(a)
	l.pushTail(b)

	acted := l.sweep(now, time.Minute, func(s *Session) FateDecision {
		return FateDecision{Fate: FatePreserve}
	})

	if len(acted) != 0 {
		t.Fatalf("FatePreserve should stop the sweep before acting, got %d actions", len(acted))
	}
	if l.len() != 2 {
		t.Fatalf("FatePreserve should leave every session linked, len() = %d", l.len())
	}
}
