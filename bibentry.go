package bib

import "github.com/nat64lab/bib/internal/index"

// BIBEntry is a binding between one inside IPv6 transport address and one
// outside IPv4 transport address, for one protocol.
//
// Within a protocol table, Src6 is unique, Src4 is unique, and the v6 and
// v4 indices hold exactly the same set of entries — those invariants are
// maintained by Table, never by BIBEntry itself.
type BIBEntry struct {
	Src6     TransportAddr
	Src4     TransportAddr
	Proto    Protocol
	IsStatic bool

	sessions *index.Tree[*Session] // keyed by Session.Dst4
}

// reset clears a BIBEntry so it carries no live references before being
// returned to the entry pool. The sessions tree is intentionally kept
// (its backing btree storage is cheap to reuse empty) but must already be
// empty by the time an entry is pooled.
func (e *BIBEntry) reset() {
	if e.sessions != nil && e.sessions.Len() != 0 {
		panic("bib: pooled a BIBEntry with a non-empty session tree")
	}
	*e = BIBEntry{sessions: e.sessions}
}

// SessionCount returns the number of sessions currently attached to this
// entry.
func (e *BIBEntry) SessionCount() int {
	return e.sessions.Len()
}

// bibLessBySrc6 orders BIB entries by Src6, for the v6-keyed index.
func bibLessBySrc6(a, b *BIBEntry) bool {
	return CompareTransportAddr(a.Src6, b.Src6) < 0
}

// bibLessBySrc4 orders BIB entries by Src4, for the v4-keyed index.
func bibLessBySrc4(a, b *BIBEntry) bool {
	return CompareTransportAddr(a.Src4, b.Src4) < 0
}
