package bib

import (
	"time"

	"github.com/nat64lab/bib/internal/queue"
)

// Add4 is the 4->6 data-plane entry point for UDP and ICMP. It never
// creates a BIB entry: a miss on the v4 tree is always *no-such-entry*,
// since there is no outbound address left to allocate from this side.
func (db *Database) Add4(tuple Tuple4, dst6 TransportAddr, now time.Time) (SessionSnapshot, error) {
	t := db.table(tuple.Proto)
	snap, events, err := t.findAndAdd4(tuple, dst6, nil, now, false, PacketFlags{}, nil)
	db.drainAll(events)
	return snap, err
}

// AddTCP4 is the 4->6 entry point carrying the full TCP state machine,
// Simultaneous-Open packet storage, and Address-Dependent Filtering.
// dst6 is the translated inside destination this packet resolves to (the
// BIB entry's Src6, once one exists); callers storing a type-1 packet
// with no BIB yet must still supply it, since the eventual SO-upgrading
// v6 SYN is matched against it by inside host, not by peer address.
// packet is the raw inbound segment; if this call stores it (type-1 or
// type-2), the returned error wraps ErrStolen and the caller must not
// forward or free packet itself.
func (db *Database) AddTCP4(tuple Tuple4, dst6 TransportAddr, packet []byte, now time.Time, flags PacketFlags, sm SMCallback) (SessionSnapshot, error) {
	if sm == nil {
		sm = defaultSMCallback
	}
	t := db.table(ProtoTCP)
	snap, events, err := t.findAndAdd4(tuple, dst6, packet, now, true, flags, sm)
	db.drainAll(events)
	return snap, err
}

// findAndAdd4 looks up a BIB entry for tuple.Dst4, extended with the
// TCP-only SO storage and ADF logic when isTCP is set.
func (t *Table) findAndAdd4(tuple Tuple4, dst6 TransportAddr, packet []byte, now time.Time, isTCP bool, flags PacketFlags, sm SMCallback) (SessionSnapshot, []postSweepEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.v4.Find(&BIBEntry{Src4: tuple.Dst4})
	if !ok {
		if isTCP && flags.SYN {
			if t.cfg.DropExternalTCP {
				return SessionSnapshot{}, nil, wrapf(ErrForbidden, "bib: drop-external-tcp refused SYN toward %s", tuple.Dst4)
			}
			return t.storeType1(tuple, dst6, packet, now)
		}
		return SessionSnapshot{}, nil, wrapf(ErrNoSuchEntry, "bib: no BIB entry for %s", tuple.Dst4)
	}

	peer := tuple.Src4
	seenSamePeerAddr := false
	e.sessions.Foreach(func(s *Session) bool {
		if s.Dst4.Addr == peer.Addr {
			seenSamePeerAddr = true
			return false
		}
		return true
	})

	s, found := t.findSession(e, peer)
	if found {
		if isTCP {
			decision := sm(s.Snapshot(), FromV4, flags, now)
			events, snap, err := t.applyCollisionDecision(s, decision)
			return snap, events, err
		}
		t.est.touch(s, now)
		return s.Snapshot(), nil, nil
	}

	if isTCP {
		if !flags.SYN {
			// CLOSED-state entry for non-SYN TCP: informational BIB, no
			// state created.
			return e.closedSnapshot(), nil, wrapf(ErrNoSuchEntry, "bib: no session toward %s", peer)
		}
		return t.storeType2(e, dst6, peer, packet, seenSamePeerAddr, now)
	}

	if t.cfg.AddressDependentFiltering && !seenSamePeerAddr {
		if t.metrics != nil {
			t.metrics.IncADFRejection(t.proto.String())
		}
		return SessionSnapshot{}, nil, wrapf(ErrForbidden, "bib: ADF refused new peer %s", peer)
	}

	s = t.createSession(e, dst6, peer, StateEstablished, now, TimerEst)
	return s.Snapshot(), nil, nil
}

// storeType1 holds a v4-initiated SYN with no BIB yet, awaiting its v6
// peer's SO-upgrading SYN. The packet queue owns packet afterwards;
// ErrStolen signals the transfer.
func (t *Table) storeType1(tuple Tuple4, dst6 TransportAddr, packet []byte, now time.Time) (SessionSnapshot, []postSweepEvent, error) {
	if t.pktQueue == nil {
		return SessionSnapshot{}, nil, wrapf(ErrInvalid, "bib: TCP table has no packet queue")
	}
	entry := &queue.Entry{
		Dst6:     toAddrPort(dst6),
		Src4:     toAddrPort(tuple.Src4),
		Dst4:     toAddrPort(tuple.Dst4),
		Packet:   packet,
		StoredAt: now,
	}
	if !t.pktQueue.Add(entry) {
		return SessionSnapshot{}, nil, wrapf(ErrNoSpace, "bib: type-1 packet queue full")
	}
	t.pktCount++
	return SessionSnapshot{}, nil, wrapf(ErrStolen, "bib: SYN stored awaiting v6 peer")
}

// storeType2 creates a provisional V4_INIT session with the SYN attached,
// subject to ADF and the shared stored-packet limit. An ADF refusal
// returns ErrForbidden with no emission. When the stored-packet limit is
// reached it returns a postSweepEvent asking the caller to
// emit ICMP Port-Unreachable immediately, since the packet was never
// attached anywhere and the caller otherwise has no path to it once this
// call returns.
func (t *Table) storeType2(e *BIBEntry, dst6, peer TransportAddr, packet []byte, seenSamePeerAddr bool, now time.Time) (SessionSnapshot, []postSweepEvent, error) {
	if t.cfg.AddressDependentFiltering && !seenSamePeerAddr {
		if t.metrics != nil {
			t.metrics.IncADFRejection(t.proto.String())
		}
		return SessionSnapshot{}, nil, wrapf(ErrForbidden, "bib: ADF refused new peer %s", peer)
	}
	if t.pktCount >= t.cfg.MaxStoredPkts {
		ev := postSweepEvent{kind: postSweepICMP, proto: t.proto, src4: e.Src4, dst4: peer, packet: packet}
		return SessionSnapshot{}, []postSweepEvent{ev}, wrapf(ErrNoSpace, "bib: stored-packet limit reached")
	}

	s := t.createSession(e, dst6, peer, StateV4Init, now, TimerSyn4)
	t.attachStoredPacket(s, &StoredPacket{Packet: packet, StoredAt: now})
	return s.Snapshot(), nil, wrapf(ErrStolen, "bib: SYN stored pending ADF authorization")
}

// closedSnapshot returns e's identity with no session fields populated,
// the informational return for a non-SYN TCP miss.
func (e *BIBEntry) closedSnapshot() SessionSnapshot {
	return SessionSnapshot{Src6: e.Src6, Src4: e.Src4, Proto: e.Proto, IsStatic: e.IsStatic}
}
