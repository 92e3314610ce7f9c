// Package queue implements the bounded packet-holding queue used for
// Simultaneous Open detection: type-1 entries are v4 SYNs held with no
// BIB/session yet, awaiting a v6 peer; type-2 entries are attached
// directly to a provisional session instead of living in this queue (see
// the bib package's session.Stored field).
//
// Queue is not safe for concurrent use on its own; the caller (a bib
// Table) is expected to hold its own lock around every call, exactly as
// the rest of a table's mutable state is guarded.
package queue

import (
	"net/netip"
	"time"
)

// AddrPort is a minimal, dependency-free transport address: just enough
// for the queue to compare and match entries without importing the bib
// package's TransportAddr (which would create an import cycle, since the
// bib package imports this one).
type AddrPort struct {
	Addr netip.Addr
	Port uint16
}

// Entry is one held SYN packet: its lookup keys, the raw bytes (owned by
// the queue once stored — the caller must treat it as stolen), whether
// it is a synthetic probe template, and when it was stored.
type Entry struct {
	Dst6     AddrPort
	Src4     AddrPort
	Dst4     AddrPort // the translator's own outside address the packet targeted
	Packet   []byte
	IsProbe  bool
	StoredAt time.Time
}

// Queue holds up to Capacity type-1 entries in storage order (oldest
// first), which also happens to be timeout order since entries are never
// reordered after insertion.
type Queue struct {
	Capacity int
	entries  []*Entry
}

// New creates a Queue bounded to capacity entries.
func New(capacity int) *Queue {
	return &Queue{Capacity: capacity}
}

// Len reports how many entries are currently stored.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Add stores e, returning false if the queue is already at capacity.
func (q *Queue) Add(e *Entry) bool {
	if len(q.entries) >= q.Capacity {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

// Find looks for a stored entry whose Dst6 equals dst6 and whose Dst4 (the
// translator's own outside address the original packet targeted)
// satisfies match, removing and returning it on a hit. match lets the
// caller test mask-domain membership during a Simultaneous-Open upgrade
// without this package depending on pool4 types.
func (q *Queue) Find(dst6 AddrPort, match func(dst4 AddrPort) bool) (*Entry, bool) {
	for i, e := range q.entries {
		if e.Dst6 == dst6 && match(e.Dst4) {
			q.removeAt(i)
			return e, true
		}
	}
	return nil, false
}

// Rm removes one entry (if any) whose Dst4 — the translator's own outside
// address the held packet targeted — equals src4, e.g. when a static BIB
// add evicts a pending type-1 packet toward the new binding's src4.
func (q *Queue) Rm(src4 AddrPort) bool {
	for i, e := range q.entries {
		if e.Dst4 == src4 {
			q.removeAt(i)
			return true
		}
	}
	return false
}

// PrepareClean removes every entry stored at or before now-timeout and
// appends it to out, for ICMP-unreachable emission by the caller after it
// has dropped its table lock.
func (q *Queue) PrepareClean(now time.Time, timeout time.Duration, out []*Entry) []*Entry {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if now.Sub(e.StoredAt) >= timeout {
			out = append(out, e)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return out
}

func (q *Queue) removeAt(i int) {
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
}
