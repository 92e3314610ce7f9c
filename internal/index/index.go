// Package index implements the ordered-index primitive shared by every
// BIB and session table in the bib package: insert, find, erase, and
// in-order traversal over a comparator-ordered key.
//
// It is a thin generic wrapper around github.com/google/btree, used the
// same way github.com/gravitational/teleport and github.com/erigontech/erigon
// use it for their own ordered in-memory indices. Six instances of Tree
// back the database: a v6-keyed and a v4-keyed BIB index per protocol
// table, plus one dst4-keyed session index per BIB entry.
package index

import "github.com/google/btree"

// btreeDegree is the branching factor handed to google/btree. 32 keeps
// node scans cache-friendly without the tree growing too deep for the
// session counts a single BIB entry realistically holds.
const btreeDegree = 32

// Less reports whether a sorts before b under the index's ordering.
type Less[T any] func(a, b T) bool

// Slot is an opaque descriptor for a pending insert returned by FindSlot.
// A real tree-traversal cursor would let Commit avoid a second walk, but
// google/btree exposes no such cursor API, so Slot here only carries the
// probed key forward and Commit pays a second O(log n) ReplaceOrInsert.
// See DESIGN.md for why this divergence was accepted.
type Slot[T any] struct {
	key   T
	valid bool
}

// Tree is an ordered index over values of type T, keyed by the order
// imposed by less.
type Tree[T any] struct {
	bt   *btree.BTreeG[T]
	less Less[T]
}

// New creates an empty Tree ordered by less.
func New[T any](less Less[T]) *Tree[T] {
	return &Tree[T]{
		bt:   btree.NewG(btreeDegree, btree.LessFunc[T](less)),
		less: less,
	}
}

// Find returns the value equal to key under the tree's ordering, if any.
func (t *Tree[T]) Find(key T) (T, bool) {
	return t.bt.Get(key)
}

// FindSlot looks up key. If a colliding value is present it is returned
// with collided=true and an invalid Slot. Otherwise it returns an invalid
// zero value, collided=false, and a Slot that a subsequent Commit can use
// to insert key's eventual value.
func (t *Tree[T]) FindSlot(key T) (existing T, collided bool, slot Slot[T]) {
	if v, ok := t.bt.Get(key); ok {
		return v, true, Slot[T]{}
	}
	return existing, false, Slot[T]{key: key, valid: true}
}

// Commit inserts item, which must compare equal to the key the Slot was
// obtained for. It is a caller error to Commit an invalid Slot (one
// obtained from a FindSlot call that collided).
func (t *Tree[T]) Commit(slot Slot[T], item T) {
	if !slot.valid {
		panic("index: Commit called with an invalid Slot")
	}
	t.bt.ReplaceOrInsert(item)
}

// Insert unconditionally inserts or replaces item, for call sites
// (session creation, session-sync import) that don't need the two-phase
// collision check.
func (t *Tree[T]) Insert(item T) (old T, replaced bool) {
	return t.bt.ReplaceOrInsert(item)
}

// Erase removes the value equal to item, returning it and true if present.
func (t *Tree[T]) Erase(item T) (T, bool) {
	return t.bt.Delete(item)
}

// Next returns the value immediately following item in sort order, i.e.
// the smallest value strictly greater than item.
func (t *Tree[T]) Next(item T) (next T, ok bool) {
	skipEqual := true
	t.bt.AscendGreaterOrEqual(item, func(it T) bool {
		if skipEqual && !t.less(item, it) && !t.less(it, item) {
			skipEqual = false
			return true
		}
		next, ok = it, true
		return false
	})
	return
}

// First returns the smallest value in the tree.
func (t *Tree[T]) First() (T, bool) {
	return t.bt.Min()
}

// Foreach visits every value in ascending order, stopping early if cb
// returns false.
func (t *Tree[T]) Foreach(cb func(T) bool) {
	t.bt.Ascend(func(it T) bool { return cb(it) })
}

// AscendFrom visits values in ascending order starting from the smallest
// value >= pivot, stopping early if cb returns false. Used by RmRange
// and the paginated ForeachBIB/ForeachSession admin operations.
func (t *Tree[T]) AscendFrom(pivot T, cb func(T) bool) {
	t.bt.AscendGreaterOrEqual(pivot, cb)
}

// Clear empties the tree, calling release (if non-nil) on every value
// first, in ascending order.
func (t *Tree[T]) Clear(release func(T)) {
	if release != nil {
		t.bt.Ascend(func(it T) bool {
			release(it)
			return true
		})
	}
	t.bt.Clear(false)
}

// Len returns the number of values currently in the tree.
func (t *Tree[T]) Len() int {
	return t.bt.Len()
}
