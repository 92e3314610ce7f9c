package bib

// entryPools groups the sub-pools used for the two record types a table
// allocates on its hot path: sessions (one per active flow) and BIB
// entries (one per inside endpoint). Keeping them in separate sync.Pools
// avoids mixing the two allocation-size classes.
type entryPools struct {
	sessions *objPool[*Session]
	entries  *objPool[*BIBEntry]
}

// newEntryPools creates and returns a new entryPools containing separate
// pools for sessions and BIB entries.
func newEntryPools() *entryPools {
	return &entryPools{
		sessions: newObjPool(func() *Session { return new(Session) }),
		entries:  newObjPool(func() *BIBEntry { return new(BIBEntry) }),
	}
}

// getSession retrieves a session record from the pool, incrementing the
// live allocation count. If the receiver is nil, a fresh session is
// allocated without tracking or reuse.
func (ep *entryPools) getSession() *Session {
	if ep == nil {
		return new(Session)
	}
	return ep.sessions.Get()
}

// putSession returns a session record to its pool for reuse.
func (ep *entryPools) putSession(s *Session) {
	if ep == nil {
		return
	}
	ep.sessions.Put(s)
}

// getEntry retrieves a BIB entry record from the pool, incrementing the
// live allocation count. If the receiver is nil, a fresh entry is
// allocated without tracking or reuse.
func (ep *entryPools) getEntry() *BIBEntry {
	if ep == nil {
		return new(BIBEntry)
	}
	return ep.entries.Get()
}

// putEntry returns a BIB entry record to its pool for reuse.
func (ep *entryPools) putEntry(e *BIBEntry) {
	if ep == nil {
		return
	}
	ep.entries.Put(e)
}

// stats returns the (live, total) counts for sessions and BIB entries, in
// that order, for debugging and capacity planning.
func (ep *entryPools) stats() (sessionLive, sessionTotal, entryLive, entryTotal int64) {
	if ep == nil {
		return 0, 0, 0, 0
	}
	sessionLive, sessionTotal = ep.sessions.Stats()
	entryLive, entryTotal = ep.entries.Stats()
	return
}
