package bib

import (
	"time"

	"github.com/nat64lab/bib/internal/queue"
)

// TCPState is the per-session TCP state (RFC 6146 §3.5.2). UDP and ICMP
// sessions always report StateEstablished; the field is otherwise unused
// for those protocols.
type TCPState uint8

const (
	StateEstablished TCPState = iota
	StateV6Init
	StateV4Init
	StateV4FinRcv
	StateV6FinRcv
	StateV4FinV6FinRcv
	StateTrans
)

func (s TCPState) String() string {
	switch s {
	case StateEstablished:
		return "ESTABLISHED"
	case StateV6Init:
		return "V6_INIT"
	case StateV4Init:
		return "V4_INIT"
	case StateV4FinRcv:
		return "V4_FIN_RCV"
	case StateV6FinRcv:
		return "V6_FIN_RCV"
	case StateV4FinV6FinRcv:
		return "V4_FIN_V6_FIN_RCV"
	case StateTrans:
		return "TRANS"
	default:
		return "UNKNOWN"
	}
}

// TimerKind identifies which of a table's three timer lists a session
// currently lives on.
type TimerKind uint8

const (
	TimerEst TimerKind = iota
	TimerTrans
	TimerSyn4
)

func (k TimerKind) String() string {
	switch k {
	case TimerEst:
		return "est"
	case TimerTrans:
		return "trans"
	case TimerSyn4:
		return "syn4"
	default:
		return "unknown"
	}
}

// StoredPacket is a type-2 held packet: the inbound v4 SYN parked on a
// provisional V4_INIT session until the v6 side answers or the syn4
// timer expires. Once attached, the session owns Packet; see ErrStolen.
type StoredPacket struct {
	Packet   []byte
	IsProbe  bool
	StoredAt time.Time
}

// Session is one active flow through a BIB entry. The zero value is not
// meaningful; sessions are only constructed by a Table.
type Session struct {
	Dst6 TransportAddr
	Dst4 TransportAddr

	State      TCPState
	UpdateTime time.Time
	Expirer    TimerKind

	Stored *StoredPacket

	bib *BIBEntry

	// intrusive FIFO linkage for the timer list named by Expirer; only
	// ever touched under the owning table's lock.
	listPrev, listNext *Session
}

// BIB returns the owning BIB entry. The back-reference is always live: a
// non-empty session tree pins its BIB entry.
func (s *Session) BIB() *BIBEntry {
	return s.bib
}

// Snapshot returns an immutable copy of the session's externally visible
// state, safe to read after the caller has dropped the table lock.
func (s *Session) Snapshot() SessionSnapshot {
	bib := s.bib
	snap := SessionSnapshot{
		Dst6:       s.Dst6,
		Dst4:       s.Dst4,
		State:      s.State,
		UpdateTime: s.UpdateTime,
		Expirer:    s.Expirer,
		HasStored:  s.Stored != nil,
	}
	if bib != nil {
		snap.Src6 = bib.Src6
		snap.Src4 = bib.Src4
		snap.Proto = bib.Proto
		snap.IsStatic = bib.IsStatic
	}
	return snap
}

// reset clears a Session so it carries no live references before being
// returned to the session pool.
func (s *Session) reset() {
	*s = Session{}
}

// SessionSnapshot is the immutable view of a session and its owning BIB
// entry handed back across the data-plane API. It is the one type
// callers outside this package are expected to read.
type SessionSnapshot struct {
	Src6, Src4 TransportAddr
	Dst6, Dst4 TransportAddr
	Proto      Protocol
	IsStatic   bool
	State      TCPState
	UpdateTime time.Time
	Expirer    TimerKind
	HasStored  bool
}

// sessionLess orders sessions within a BIB entry's session tree by Dst4:
// dst4 alone discriminates sessions for TCP, UDP, and ICMP alike.
func sessionLess(a, b *Session) bool {
	return CompareTransportAddr(a.Dst4, b.Dst4) < 0
}

func toAddrPort(t TransportAddr) queue.AddrPort {
	return queue.AddrPort{Addr: t.Addr, Port: t.Port}
}

func fromAddrPort(a queue.AddrPort) TransportAddr {
	return TransportAddr{Addr: a.Addr, Port: a.Port}
}
