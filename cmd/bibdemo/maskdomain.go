package main

import (
	"fmt"
	"net/netip"

	"github.com/nat64lab/bib/internal/queue"
	"github.com/nat64lab/bib/pool4"
)

// rangeMaskDomain is a minimal pool4.MaskDomain: one outside address, a
// contiguous port range, drawn in order. It stands in for the real pool4
// allocator (out of scope, per pool4's own package doc) so this demo has
// something to hand AddTCP6/Add6 on the allocating path.
type rangeMaskDomain struct {
	addr    netip.Addr
	mark    string
	next    uint32
	lo, hi  uint32
	lastPos uint32
	started bool
}

func newRangeMaskDomain(addr netip.Addr, mark string, lo, hi uint16) *rangeMaskDomain {
	return &rangeMaskDomain{addr: addr, mark: mark, next: uint32(lo), lo: uint32(lo), hi: uint32(hi)}
}

func (d *rangeMaskDomain) Next() (queue.AddrPort, bool, bool) {
	if d.next > d.hi {
		return queue.AddrPort{}, false, false
	}
	port := d.next
	consecutive := d.started && port == d.lastPos+1
	d.lastPos = port
	d.started = true
	d.next++
	return queue.AddrPort{Addr: d.addr, Port: uint16(port)}, consecutive, true
}

func (d *rangeMaskDomain) Matches(addr queue.AddrPort) bool {
	return addr.Addr == d.addr && uint32(addr.Port) >= d.lo && uint32(addr.Port) <= d.hi
}

func (d *rangeMaskDomain) IsDynamic() bool { return true }

func (d *rangeMaskDomain) Mark() string { return d.mark }

var _ pool4.MaskDomain = (*rangeMaskDomain)(nil)

func (d *rangeMaskDomain) String() string {
	return fmt.Sprintf("%s:[%d-%d]/%s", d.addr, d.lo, d.hi, d.mark)
}
