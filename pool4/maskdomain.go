// Package pool4 defines the interface the BIB/session database consumes
// from the pool4 mask allocator. The allocator itself — which IPv4
// addresses and ports a translator owns, how they're partitioned by
// mark, and their reclamation — is an external collaborator out of scope
// for this repository; this package only names the narrow iterator
// surface the 6->4 path drives.
package pool4

import "github.com/nat64lab/bib/internal/queue"

// Candidate is one (address, port) pair a mask domain offers as a
// candidate outside transport address, paired with whether it is the
// consecutive successor of the previously returned candidate.
type Candidate struct {
	AddrPort    queue.AddrPort
	Consecutive bool
}

// MaskDomain iterates the outside (v4 address, port) pairs one packet is
// permitted to draw an allocation from. Implementations are single-use,
// single-threaded iterators: the BIB/session engine calls Next only from
// inside the owning table's lock.
type MaskDomain interface {
	// Next returns the next candidate transport address, or ok=false
	// once the domain is exhausted. Consecutive reports whether this
	// candidate is the immediate successor (same address, port+1, or
	// next address at port 0) of the previously returned candidate,
	// letting the caller avoid a full tree walk to probe the next free
	// slot.
	Next() (addr queue.AddrPort, consecutive bool, ok bool)

	// Matches reports whether addr lies within this domain, used to
	// detect a BIB entry whose src4 has fallen outside the domain after
	// a pool4 reconfiguration.
	Matches(addr queue.AddrPort) bool

	// IsDynamic reports whether this domain draws from a dynamically
	// sized range (vs. a single fixed static mapping).
	IsDynamic() bool

	// Mark identifies which pool4 partition this domain was sourced
	// from. The engine puts it in the mask-exhaustion error and the
	// per-mark exhaustion metric; it emits no log warning on
	// exhaustion.
	Mark() string
}
