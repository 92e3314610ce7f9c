package bib

import (
	"net/netip"
	"testing"
	"time"
)

func newTestTable(proto Protocol) *Table {
	return newTable(proto, DefaultConfig(), newEntryPools(), nil, nil)
}

func ta(addr string, port uint16) TransportAddr {
	return TransportAddr{Addr: netip.MustParseAddr(addr), Port: port}
}

func TestTableCreateAndFindSession(t *testing.T) {
	tbl := newTestTable(ProtoUDP)
	e := tbl.newBIBEntry(ta("2001:db8::1", 1000), ta("203.0.113.1", 2000), false)
	_, _, slot6 := tbl.v6.FindSlot(e)
	_, _, slot4 := tbl.v4.FindSlot(e)
	tbl.insertBIBEntry(e, slot6, slot4)

	dst6, dst4 := ta("64:ff9b::c000:201", 80), ta("192.0.2.1", 80)
	s := tbl.createSession(e, dst6, dst4, StateEstablished, time.Now(), TimerEst)

	if tbl.sessionCount != 1 {
		t.Fatalf("sessionCount = %d, want 1", tbl.sessionCount)
	}
	if tbl.est.len() != 1 {
		t.Fatalf("est timer list len = %d, want 1", tbl.est.len())
	}

	found, ok := tbl.findSession(e, dst4)
	if !ok || found != s {
		t.Fatalf("findSession should return the just-created session")
	}
}

func TestTableFindSessionPatchesICMPIdentifier(t *testing.T) {
	tbl := newTestTable(ProtoICMP)
	e := tbl.newBIBEntry(ta("2001:db8::1", 555), ta("203.0.113.1", 555), false)
	_, _, slot6 := tbl.v6.FindSlot(e)
	_, _, slot4 := tbl.v4.FindSlot(e)
	tbl.insertBIBEntry(e, slot6, slot4)

	dst4 := ta("192.0.2.9", 555)
	s := tbl.createSession(e, ta("64:ff9b::c000:209", 0), dst4, StateEstablished, time.Now(), TimerEst)

	// a lookup carrying a different (wrong) port must still hit, since
	// ICMP sessions are keyed by the BIB entry's identifier, not the
	// port on the incoming lookup key.
	lookup := ta("192.0.2.9", 1)
	found, ok := tbl.findSession(e, lookup)
	if !ok || found != s {
		t.Fatalf("findSession should patch the ICMP identifier before comparing")
	}
}

func TestDestroySessionCascadesNonStaticEntry(t *testing.T) {
	tbl := newTestTable(ProtoUDP)
	e := tbl.newBIBEntry(ta("2001:db8::1", 1), ta("203.0.113.1", 1), false)
	_, _, slot6 := tbl.v6.FindSlot(e)
	_, _, slot4 := tbl.v4.FindSlot(e)
	tbl.insertBIBEntry(e, slot6, slot4)

	s := tbl.createSession(e, ta("64:ff9b::1", 2), ta("198.51.100.1", 2), StateEstablished, time.Now(), TimerEst)
	tbl.destroySession(s, "test")

	if tbl.sessionCount != 0 {
		t.Fatalf("sessionCount after destroy = %d, want 0", tbl.sessionCount)
	}
	if tbl.v6.Len() != 0 {
		t.Fatalf("a sessionless non-static entry must be cascade-removed, v6.Len() = %d", tbl.v6.Len())
	}
}

func TestDestroySessionKeepsStaticEntry(t *testing.T) {
	tbl := newTestTable(ProtoUDP)
	e := tbl.newBIBEntry(ta("2001:db8::1", 1), ta("203.0.113.1", 1), true)
	_, _, slot6 := tbl.v6.FindSlot(e)
	_, _, slot4 := tbl.v4.FindSlot(e)
	tbl.insertBIBEntry(e, slot6, slot4)

	s := tbl.createSession(e, ta("64:ff9b::1", 2), ta("198.51.100.1", 2), StateEstablished, time.Now(), TimerEst)
	tbl.destroySession(s, "test")

	if tbl.v6.Len() != 1 {
		t.Fatalf("a static entry must survive becoming sessionless, v6.Len() = %d", tbl.v6.Len())
	}
}

func TestPktCountAdjustTracksStoredPackets(t *testing.T) {
	tbl := newTestTable(ProtoTCP)
	e := tbl.newBIBEntry(ta("2001:db8::1", 1), ta("203.0.113.1", 1), false)
	_, _, slot6 := tbl.v6.FindSlot(e)
	_, _, slot4 := tbl.v4.FindSlot(e)
	tbl.insertBIBEntry(e, slot6, slot4)

	s := tbl.createSession(e, ta("64:ff9b::1", 2), ta("198.51.100.1", 2), StateV4Init, time.Now(), TimerSyn4)
	if tbl.pktCount != 0 {
		t.Fatalf("pktCount before attach = %d, want 0", tbl.pktCount)
	}

	tbl.attachStoredPacket(s, &StoredPacket{Packet: []byte("syn")})
	if tbl.pktCount != 1 {
		t.Fatalf("pktCount after attach = %d, want 1", tbl.pktCount)
	}

	tbl.destroySession(s, "test")
	if tbl.pktCount != 0 {
		t.Fatalf("pktCount after destroying a session with a stored packet = %d, want 0", tbl.pktCount)
	}
}

func TestEstFateProbesIdleTCPEstablished(t *testing.T) {
	tbl := newTestTable(ProtoTCP)
	s := &Session{State: StateEstablished}
	d := tbl.estFate(s, time.Now())
	if d.Fate != FateProbe {
		t.Fatalf("estFate on idle ESTABLISHED TCP = %v, want FateProbe", d.Fate)
	}
}

func TestEstFateRemovesIdleUDP(t *testing.T) {
	tbl := newTestTable(ProtoUDP)
	s := &Session{State: StateEstablished}
	d := tbl.estFate(s, time.Now())
	if d.Fate != FateRM {
		t.Fatalf("estFate on idle UDP = %v, want FateRM", d.Fate)
	}
}

func TestSyn4FateDistinguishesStoredPacket(t *testing.T) {
	tbl := newTestTable(ProtoTCP)

	noStored := &Session{}
	if d := tbl.syn4Fate(noStored, time.Now()); d.Fate != FateRM {
		t.Fatalf("syn4Fate without a stored packet = %v, want FateRM", d.Fate)
	}

	withStored := &Session{Stored: &StoredPacket{Packet: []byte("x")}}
	if d := tbl.syn4Fate(withStored, time.Now()); d.Fate != FateICMPUnreachable {
		t.Fatalf("syn4Fate with a stored packet = %v, want FateICMPUnreachable", d.Fate)
	}
}
