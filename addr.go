package bib

import (
	"fmt"
	"net/netip"
)

// Protocol identifies which of the three per-protocol tables a tuple or
// entry belongs to.
type Protocol uint8

const (
	// ProtoTCP selects the TCP table; the only protocol with a state
	// machine.
	ProtoTCP Protocol = iota
	// ProtoUDP selects the UDP table; sessions are always ESTABLISHED.
	ProtoUDP
	// ProtoICMP selects the ICMP table; the L4 identifier plays the role
	// of a port and sessions are always ESTABLISHED.
	ProtoICMP
)

// String renders the protocol the way log lines and error messages use it.
func (p Protocol) String() string {
	switch p {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoICMP:
		return "ICMP"
	default:
		return fmt.Sprintf("Protocol(%d)", uint8(p))
	}
}

// TransportAddr is an L3 address plus an L4 identifier: a port for TCP and
// UDP, or the ICMP query identifier for ICMP. It is the atomic key type
// for every ordered index in the database.
type TransportAddr struct {
	Addr netip.Addr
	Port uint16
}

// IsValid reports whether the address part carries a usable IP.
func (t TransportAddr) IsValid() bool {
	return t.Addr.IsValid()
}

// String renders "addr:port", bracketing IPv6 addresses.
func (t TransportAddr) String() string {
	return netip.AddrPortFrom(t.Addr, t.Port).String()
}

// CompareTransportAddr orders two transport addresses first by IP address
// (using netip.Addr.Compare, which orders IPv4 before IPv6 and is
// allocation-free) and then by port. It is the comparator handed to every
// btree-backed index keyed by a TransportAddr.
func CompareTransportAddr(a, b TransportAddr) int {
	if c := a.Addr.Compare(b.Addr); c != 0 {
		return c
	}
	if a.Port < b.Port {
		return -1
	}
	if a.Port > b.Port {
		return 1
	}
	return 0
}

// Tuple4 is the externally observed v4 side of a flow: the packet's
// source and the translated outside destination.
type Tuple4 struct {
	Src4  TransportAddr
	Dst4  TransportAddr
	Proto Protocol
}

// Tuple6 is the externally observed v6 side of a flow: the packet's
// source and the translated outside destination.
type Tuple6 struct {
	Src6  TransportAddr
	Dst6  TransportAddr
	Proto Protocol
}

// Pool6Prefix is the NAT64 well-known or network-specific prefix used to
// synthesize IPv6 destinations from IPv4 ones (RFC 6052). Only the prefix
// length and address are needed here; pool6 itself (selection, multiple
// prefixes, etc.) is an external collaborator out of scope for this
// package.
type Pool6Prefix struct {
	Prefix netip.Prefix
}

// v4Segment is one contiguous run of the embedded v4 address's bytes
// within the 16-byte v6 address, per RFC 6052 §2.2's embedding table.
// v4Off/length index into the 4-byte v4 address; dstOff is where that
// run lands in the v6 address.
type v4Segment struct {
	dstOff, v4Off, length int
}

// v4Segments returns the byte layout of the embedded v4 address for a
// given pool6 prefix length, or nil if bits is not one of the lengths
// RFC 6052 defines.
//
// The v4 address is placed contiguously right after the prefix for /32
// and /96 (the only two lengths where the prefix's byte boundary doesn't
// straddle the reserved 'u' octet at byte 8). For /40, /48, /56, and /64
// the prefix ends partway through or exactly at byte 8, so the v4
// address splits around that reserved byte: the leading bits land right
// after the prefix, byte 8 is skipped, and the remaining bits resume at
// byte 9.
func v4Segments(bits int) []v4Segment {
	switch bits {
	case 32:
		return []v4Segment{{4, 0, 4}}
	case 40:
		return []v4Segment{{5, 0, 3}, {9, 3, 1}}
	case 48:
		return []v4Segment{{6, 0, 2}, {9, 2, 2}}
	case 56:
		return []v4Segment{{7, 0, 1}, {9, 1, 3}}
	case 64:
		return []v4Segment{{9, 0, 4}}
	case 96:
		return []v4Segment{{12, 0, 4}}
	default:
		return nil
	}
}

// Embed synthesizes the IPv6 representation of a v4 address under this
// pool6 prefix, per RFC 6052. Embed panics if the prefix length is not
// one of the lengths RFC 6052 defines; pool6 configuration is validated
// by its own (out-of-scope) store before ever reaching this package.
func (p Pool6Prefix) Embed(v4 netip.Addr) netip.Addr {
	bits := p.Prefix.Bits()
	segs := v4Segments(bits)
	if segs == nil {
		panic(fmt.Sprintf("bib: unsupported pool6 prefix length /%d", bits))
	}

	var out [16]byte
	prefixBytes := p.Prefix.Addr().As16()
	copy(out[:], prefixBytes[:])

	v4b := v4.As4()
	for _, seg := range segs {
		copy(out[seg.dstOff:seg.dstOff+seg.length], v4b[seg.v4Off:seg.v4Off+seg.length])
	}

	return netip.AddrFrom16(out)
}

// Extract reverses Embed: given a synthesized IPv6 address, it returns the
// embedded IPv4 address. ok is false if v6 does not fall under this
// prefix.
func (p Pool6Prefix) Extract(v6 netip.Addr) (v4 netip.Addr, ok bool) {
	if !p.Prefix.Contains(v6) {
		return netip.Addr{}, false
	}

	bits := p.Prefix.Bits()
	segs := v4Segments(bits)
	if segs == nil {
		return netip.Addr{}, false
	}

	v6b := v6.As16()
	var v4b [4]byte
	for _, seg := range segs {
		copy(v4b[seg.v4Off:seg.v4Off+seg.length], v6b[seg.dstOff:seg.dstOff+seg.length])
	}
	return netip.AddrFrom4(v4b), true
}

// DeriveDst4 computes dst4 from dst6 under this pool6 prefix: dst4's
// address is dst6's address with the pool6 prefix stripped. The port
// (or, for ICMP, the to-be-patched identifier) is carried over
// unchanged; callers patch the ICMP identifier separately.
func (p Pool6Prefix) DeriveDst4(dst6 TransportAddr) (TransportAddr, bool) {
	v4, ok := p.Extract(dst6.Addr)
	if !ok {
		return TransportAddr{}, false
	}
	return TransportAddr{Addr: v4, Port: dst6.Port}, true
}
