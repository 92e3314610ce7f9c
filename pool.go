package bib

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// resettable is implemented by pooled record types so Put can clear
// back-references and held packet buffers before the object is reused.
type resettable interface {
	reset()
}

// objPool is a type-safe wrapper around sync.Pool, specialized for the
// session and BIB entry records a table allocates and frees on every
// translated packet.
//
// It efficiently reuses record memory and tracks statistics on
// allocations and active use for debugging and performance tuning.
type objPool[T resettable] struct {
	sync.Pool // embedded sync.Pool for T

	// TODO: drop these once pool sizing is tuned against real traffic.
	totalAllocated atomic.Int64 // total number of T ever allocated
	currentLive    atomic.Int64 // number of T currently checked out
}

// newObjPool creates and returns a new pool for T instances, using zero
// to allocate a fresh, empty T on a pool miss.
func newObjPool[T resettable](zero func() T) *objPool[T] {
	p := &objPool[T]{}
	p.New = func() any {
		p.totalAllocated.Add(1) // TODO: drop once pool sizing is tuned.
		return zero()
	}
	return p
}

// Get retrieves a T from the pool, or creates a new one if needed.
//
// If the pool is nil, a new value is returned without tracking.
func (p *objPool[T]) Get() T {
	if p == nil {
		var zero T
		if rt := reflect.TypeOf(zero); rt != nil && rt.Kind() == reflect.Pointer {
			return reflect.New(rt.Elem()).Interface().(T)
		}
		return zero
	}
	p.currentLive.Add(1)

	return p.Pool.Get().(T)
}

// Put returns a T to the pool for potential reuse.
//
// The value is reset before storage so the pool never retains a live
// back-reference to a table, BIB entry, or stored packet buffer. If the
// pool is nil, the value is discarded and not reused.
func (p *objPool[T]) Put(v T) {
	if p == nil {
		return
	}
	p.currentLive.Add(-1)

	v.reset()
	p.Pool.Put(v)
}

// Stats returns the number of currently live (checked-out) values and the
// total number of T ever allocated by this pool.
func (p *objPool[T]) Stats() (live int64, total int64) {
	if p == nil {
		return 0, 0
	}
	return p.currentLive.Load(), p.totalAllocated.Load()
}
