package bib

import (
	"time"

	"github.com/nat64lab/bib/internal/index"
	"github.com/nat64lab/bib/internal/queue"
	"github.com/nat64lab/bib/pool4"
)

// Add6 is the 6->4 data-plane entry point for UDP, ICMP, and non-SYN TCP
// state refresh. masks may be nil on the replay path (session-sync
// import, forced refresh), which skips the SO-upgrade and mask-eviction
// checks that require a live mask domain.
func (db *Database) Add6(tuple Tuple6, masks pool4.MaskDomain, dst4 TransportAddr, now time.Time) (SessionSnapshot, error) {
	t := db.table(tuple.Proto)
	snap, events, err := t.findAndAdd6(tuple.Src6, tuple.Dst6, masks, dst4, now, false, FromV6, PacketFlags{}, nil)
	db.drainAll(events)
	return snap, err
}

// AddTCP6 is the 6->4 entry point carrying the full TCP state machine.
// sm may be nil to use the default transition table (tcpsm.go); a
// caller-supplied sm is how session-sync import and forced expiry
// override the packet-driven decision.
func (db *Database) AddTCP6(tuple Tuple6, masks pool4.MaskDomain, dst4 TransportAddr, now time.Time, flags PacketFlags, sm SMCallback) (SessionSnapshot, error) {
	if sm == nil {
		sm = defaultSMCallback
	}
	t := db.table(ProtoTCP)
	snap, events, err := t.findAndAdd6(tuple.Src6, tuple.Dst6, masks, dst4, now, true, FromV6, flags, sm)
	db.drainAll(events)
	return snap, err
}

func (db *Database) drainAll(events []postSweepEvent) {
	for _, ev := range events {
		db.drain(ev)
	}
}

// findAndAdd6 looks up or creates a BIB entry for src6, then looks up or
// creates the session toward dst4.
func (t *Table) findAndAdd6(src6, dst6 TransportAddr, masks pool4.MaskDomain, dst4 TransportAddr, now time.Time, isTCP bool, dir Direction, flags PacketFlags, sm SMCallback) (SessionSnapshot, []postSweepEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, existed, v6Slot := t.v6.FindSlot(&BIBEntry{Src6: src6})

	if existed && masks != nil && !masks.Matches(toAddrPort(e.Src4)) {
		// The operator's pool4 reconfiguration evicted this entry's
		// outside address out from under it. Evict and fall through to
		// reallocation; never keep the stale binding.
		t.cascadeDetach(e, "mask-vanished")
		e, existed, v6Slot = t.v6.FindSlot(&BIBEntry{Src6: src6})
		if existed {
			return SessionSnapshot{}, nil, wrapf(ErrInvalid, "bib: entry for %s reappeared after eviction", src6)
		}
	}

	if !existed && masks != nil && t.pktQueue != nil {
		// A type-1 entry is keyed by the inside host it was waiting on
		// (src6 here), not by the embedded peer address — storeType1
		// has no BIB yet to learn the peer's v6 view from. The v4
		// address to adopt as this entry's outside address is the
		// stored packet's own Dst4 (what it targeted), not its Src4
		// (the external peer), which is what the mask domain must
		// match too.
		if stolen, found := t.pktQueue.Find(toAddrPort(src6), func(dst4 queue.AddrPort) bool { return masks.Matches(dst4) }); found {
			t.pktCount--
			fresh := t.newBIBEntry(src6, fromAddrPort(stolen.Dst4), false)
			_, v4Collided, v4Slot := t.v4.FindSlot(fresh)
			if v4Collided {
				t.pools.putEntry(fresh)
				return SessionSnapshot{}, nil, wrapf(ErrInvalid, "bib: SO-upgrade src4 %s already bound", fresh.Src4)
			}
			t.insertBIBEntry(fresh, v6Slot, v4Slot)
			s := t.createSession(fresh, dst6, dst4, StateV4Init, now, TimerSyn4)
			return s.Snapshot(), nil, nil
		}
	}

	if !existed {
		if masks == nil {
			return SessionSnapshot{}, nil, wrapf(ErrNoSuchEntry, "bib: no BIB entry for %s (replay path, no mask domain)", src6)
		}
		src4, v4Slot, err := t.allocateMaskSlot(masks)
		if err != nil {
			if t.metrics != nil {
				t.metrics.IncMaskExhausted(masks.Mark())
			}
			return SessionSnapshot{}, nil, err
		}
		fresh := t.newBIBEntry(src6, src4, false)
		t.insertBIBEntry(fresh, v6Slot, v4Slot)
		e = fresh
	}

	s, found := t.findSession(e, dst4)
	if found {
		if isTCP {
			decision := sm(s.Snapshot(), dir, flags, now)
			events, snap, err := t.applyCollisionDecision(s, decision)
			return snap, events, err
		}
		t.est.touch(s, now)
		return s.Snapshot(), nil, nil
	}

	state, timer := StateEstablished, TimerEst
	if isTCP {
		state, timer = StateV6Init, TimerTrans
	}
	s = t.createSession(e, dst6, dst4, state, now, timer)
	return s.Snapshot(), nil, nil
}

// allocateMaskSlot draws the first free candidate from masks that does
// not collide with an existing v4-tree entry. The "consecutive"
// optimization masks.Next() reports is not exploited here: see
// internal/index's Slot type doc and DESIGN.md for why a cheap successor
// probe isn't available without a real btree cursor, so every candidate
// pays a full FindSlot.
func (t *Table) allocateMaskSlot(masks pool4.MaskDomain) (TransportAddr, index.Slot[*BIBEntry], error) {
	for {
		ap, _, ok := masks.Next()
		if !ok {
			return TransportAddr{}, index.Slot[*BIBEntry]{}, wrapf(ErrNoFreeAddress, "bib: mask domain %s exhausted", masks.Mark())
		}
		candidate := fromAddrPort(ap)
		_, collided, slot := t.v4.FindSlot(&BIBEntry{Src4: candidate})
		if !collided {
			return candidate, slot, nil
		}
	}
}

// cascadeDetach removes e and every one of its sessions, pooling both as
// it goes. Unlike the single-session teardown in destroySessionDetached,
// this always detaches e regardless of IsStatic — it's used for Issue
// 216 eviction and admin rm/rm_range/flush, where the entry itself (not
// just its session count) is being explicitly destroyed.
func (t *Table) cascadeDetach(e *BIBEntry, reason string) {
	e.sessions.Foreach(func(s *Session) bool {
		t.timerFor(s.Expirer).remove(s)
		t.sessionCount--
		t.pktCountAdjust(s, -1)
		if t.log.Enabled() {
			t.log.ForgotSession(e.Src6.String(), e.Src4.String(), s.Dst6.String(), s.Dst4.String())
		}
		if t.metrics != nil {
			t.metrics.IncSessionsClosed(t.proto.String(), reason)
		}
		return true
	})
	if t.metrics != nil {
		t.metrics.SetSessions(t.proto.String(), t.sessionCount)
	}
	e.sessions.Clear(func(s *Session) { t.pools.putSession(s) })
	t.detachBIBEntry(e)
	t.pools.putEntry(e)
}
