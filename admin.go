package bib

import (
	"net/netip"

	"github.com/nat64lab/bib/internal/queue"
)

// AddStatic creates a static BIB entry: one that survives becoming
// sessionless. Re-adding the exact same (src6,
// src4) pair is idempotent (promotes an existing dynamic entry to
// static); any other v6 or v4 collision is *already-exists*. For TCP,
// adding a static binding evicts any pending type-1 packet stored under
// the new src4.
func (db *Database) AddStatic(proto Protocol, src6, src4 TransportAddr) error {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	if byV6, ok := t.v6.Find(&BIBEntry{Src6: src6}); ok {
		if byV6.Src4 != src4 {
			return wrapf(ErrAlreadyExists, "bib: %s already bound to a different outside address", src6)
		}
		byV6.IsStatic = true
		return nil
	}
	if _, ok := t.v4.Find(&BIBEntry{Src4: src4}); ok {
		return wrapf(ErrAlreadyExists, "bib: %s already bound to a different inside address", src4)
	}

	_, _, v6Slot := t.v6.FindSlot(&BIBEntry{Src6: src6})
	_, _, v4Slot := t.v4.FindSlot(&BIBEntry{Src4: src4})
	e := t.newBIBEntry(src6, src4, true)
	t.insertBIBEntry(e, v6Slot, v4Slot)

	if t.pktQueue != nil {
		for t.pktQueue.Rm(toAddrPort(src4)) {
			t.pktCount--
		}
	}
	return nil
}

// Rm removes the BIB entry matching (src6, src4, proto) along with every
// session it owns. It is *no-such-entry* if the triple doesn't match an
// existing entry exactly.
func (db *Database) Rm(proto Protocol, src6, src4 TransportAddr) error {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.v6.Find(&BIBEntry{Src6: src6})
	if !ok || e.Src4 != src4 {
		return wrapf(ErrNoSuchEntry, "bib: no entry for %s/%s", src6, src4)
	}
	t.cascadeDetach(e, "rm")
	return nil
}

// RmRange removes every BIB entry of proto whose src4 falls inside both
// prefix and [portLo, portHi]. It walks the v4-keyed tree starting from
// the first entry >= (prefix.Addr, portLo), stopping at the first entry
// whose address falls outside prefix.
func (db *Database) RmRange(proto Protocol, prefix netip.Prefix, portLo, portHi uint16) int {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	pivot := &BIBEntry{Src4: TransportAddr{Addr: prefix.Addr(), Port: portLo}}
	var toRemove []*BIBEntry
	t.v4.AscendFrom(pivot, func(e *BIBEntry) bool {
		if !prefix.Contains(e.Src4.Addr) {
			return false
		}
		if e.Src4.Port >= portLo && e.Src4.Port <= portHi {
			toRemove = append(toRemove, e)
		}
		return true
	})
	for _, e := range toRemove {
		t.cascadeDetach(e, "rm-range")
	}
	return len(toRemove)
}

// Flush removes every BIB entry (and session) of one protocol table.
func (db *Database) Flush(proto Protocol) {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

// FlushAll removes every BIB entry and session across all three tables.
func (db *Database) FlushAll() {
	for _, t := range db.tables() {
		t.mu.Lock()
		t.flushLocked()
		t.mu.Unlock()
	}
}

func (t *Table) flushLocked() {
	var all []*BIBEntry
	t.v6.Foreach(func(e *BIBEntry) bool {
		all = append(all, e)
		return true
	})
	for _, e := range all {
		t.cascadeDetach(e, "flush")
	}
	if t.pktQueue != nil {
		t.pktCount -= t.pktQueue.Len()
		t.pktQueue = queue.New(t.cfg.MaxStoredPkts)
	}
}

// ImportSession installs snap as a live session, used by the joold
// session-sync import path: it inserts into the target timer list with
// an arbitrary update_time via the FateTimerSlow path. It creates the
// owning BIB entry if none exists yet, or refreshes an existing
// session's state/update_time/timer placement in place.
func (db *Database) ImportSession(snap SessionSnapshot) error {
	t := db.table(snap.Proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.v6.Find(&BIBEntry{Src6: snap.Src6})
	if !ok {
		_, v6Collided, v6Slot := t.v6.FindSlot(&BIBEntry{Src6: snap.Src6})
		if v6Collided {
			return wrapf(ErrAlreadyExists, "bib: sync import collides on %s", snap.Src6)
		}
		_, v4Collided, v4Slot := t.v4.FindSlot(&BIBEntry{Src4: snap.Src4})
		if v4Collided {
			return wrapf(ErrAlreadyExists, "bib: sync import collides on %s", snap.Src4)
		}
		fresh := t.newBIBEntry(snap.Src6, snap.Src4, snap.IsStatic)
		t.insertBIBEntry(fresh, v6Slot, v4Slot)
		e = fresh
	} else if e.Src4 != snap.Src4 {
		return wrapf(ErrAlreadyExists, "bib: sync import src4 mismatch for %s", snap.Src6)
	}

	if s, found := t.findSession(e, snap.Dst4); found {
		t.timerFor(s.Expirer).remove(s)
		s.State = snap.State
		s.UpdateTime = snap.UpdateTime
		t.timerFor(snap.Expirer).insertSorted(s)
		return nil
	}

	s := t.pools.getSession()
	s.Dst6, s.Dst4 = snap.Dst6, snap.Dst4
	s.State = snap.State
	s.UpdateTime = snap.UpdateTime
	s.bib = e
	e.sessions.Insert(s)
	t.timerFor(snap.Expirer).insertSorted(s)
	t.sessionCount++
	t.pktCountAdjust(s, 1)
	if t.metrics != nil {
		t.metrics.SetSessions(t.proto.String(), t.sessionCount)
	}
	return nil
}

// BIBRecord is the read-only view ForeachBIB hands to its callback.
type BIBRecord struct {
	Src6, Src4 TransportAddr
	Proto      Protocol
	IsStatic   bool
	Sessions   int
}

// ForeachBIB visits every BIB entry of proto in ascending src6 order,
// starting strictly after offset. A zero offset starts from the
// beginning; an offset that no longer exists resolves to the next
// greater entry, exactly like RmRange's pivot walk. Iteration stops
// early if cb returns false.
func (db *Database) ForeachBIB(proto Protocol, offset TransportAddr, cb func(BIBRecord) bool) {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	skipped := !offset.IsValid()
	t.v6.AscendFrom(&BIBEntry{Src6: offset}, func(e *BIBEntry) bool {
		if !skipped {
			if e.Src6 == offset {
				skipped = true
				return true
			}
			skipped = true
		}
		return cb(BIBRecord{Src6: e.Src6, Src4: e.Src4, Proto: e.Proto, IsStatic: e.IsStatic, Sessions: e.SessionCount()})
	})
}

// ForeachSession visits every session of proto in ascending (src4, dst4)
// order, starting strictly after offset. Sessions are grouped by their
// owning BIB entry's src4 (the v4-tree order), then by dst4 within each
// entry.
func (db *Database) ForeachSession(proto Protocol, offsetSrc4, offsetDst4 TransportAddr, cb func(SessionSnapshot) bool) {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	first := true
	t.v4.AscendFrom(&BIBEntry{Src4: offsetSrc4}, func(e *BIBEntry) bool {
		pivot := TransportAddr{}
		if first && offsetSrc4.IsValid() && e.Src4 == offsetSrc4 {
			pivot = offsetDst4
		}
		first = false

		keepGoing := true
		e.sessions.AscendFrom(&Session{Dst4: pivot}, func(s *Session) bool {
			if pivot.IsValid() && s.Dst4 == pivot {
				return true
			}
			keepGoing = cb(s.Snapshot())
			return keepGoing
		})
		return keepGoing
	})
}
