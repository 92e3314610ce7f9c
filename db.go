package bib

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nat64lab/bib/internal/dbmetrics"
	"github.com/nat64lab/bib/internal/obslog"
)

// Hooks are the post-unlock emission callbacks a Database drains events
// into: sending a TCP keepalive probe or an ICMP Port-Unreachable. None
// of these run under any table lock — no suspension points inside the
// lock; a nil hook is simply skipped.
type Hooks struct {
	// EmitProbe sends an empty-ACK keepalive for an idle established TCP
	// session.
	EmitProbe func(SessionSnapshot)

	// EmitICMPUnreachable delivers an ICMP Port-Unreachable for a packet
	// that was held (type-1 or type-2) and timed out or was rejected.
	EmitICMPUnreachable func(proto Protocol, src4, dst4 TransportAddr, packet []byte)
}

func (h Hooks) probe(snap SessionSnapshot) {
	if h.EmitProbe != nil {
		h.EmitProbe(snap)
	}
}

func (h Hooks) icmpUnreachable(proto Protocol, src4, dst4 TransportAddr, packet []byte) {
	if h.EmitICMPUnreachable != nil {
		h.EmitICMPUnreachable(proto, src4, dst4, packet)
	}
}

// Database owns the three per-protocol tables and is the top-level type
// this package exposes to a translator.
type Database struct {
	tcp, udp, icmp *Table
	pools          *entryPools
	hooks          Hooks
	cfg            Config
}

// New constructs a Database with the given configuration. log may be nil
// (defaults to logrus's standard logger, gated off unless Config's
// LogBIBEvents/LogSessionEvents turn a table's flag on). metrics may be
// nil to skip metrics wiring entirely; otherwise build it with
// dbmetrics.New, whose nil registerer means
// prometheus.DefaultRegisterer.
func New(cfg Config, log *logrus.Logger, metrics *dbmetrics.Metrics, hooks Hooks) *Database {
	pools := newEntryPools()

	db := &Database{
		tcp:   newTable(ProtoTCP, cfg, pools, obslog.New(log, "TCP"), metrics),
		udp:   newTable(ProtoUDP, cfg, pools, obslog.New(log, "UDP"), metrics),
		icmp:  newTable(ProtoICMP, cfg, pools, obslog.New(log, "ICMP"), metrics),
		pools: pools,
		hooks: hooks,
		cfg:   cfg,
	}

	for _, t := range db.tables() {
		t.log.SetEnabled(cfg.LogBIBEvents || cfg.LogSessionEvents)
	}
	return db
}

func (db *Database) tables() [3]*Table {
	return [3]*Table{db.tcp, db.udp, db.icmp}
}

func (db *Database) table(proto Protocol) *Table {
	switch proto {
	case ProtoTCP:
		return db.tcp
	case ProtoUDP:
		return db.udp
	default:
		return db.icmp
	}
}

// Find looks up an existing session by its inner (proto, src6, dst6)
// view, without creating anything.
func (db *Database) Find(proto Protocol, src6, dst6 TransportAddr) (SessionSnapshot, error) {
	t := db.table(proto)
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.v6.Find(&BIBEntry{Src6: src6})
	if !ok {
		return SessionSnapshot{}, wrapf(ErrNoSuchEntry, "find: no BIB entry for %s/%s", proto, src6)
	}
	dst4, ok := t.cfg.Pool6.DeriveDst4(dst6)
	if !ok {
		return SessionSnapshot{}, wrapf(ErrInvalid, "find: dst6 %s not under pool6 prefix", dst6)
	}
	s, ok := t.findSession(e, dst4)
	if !ok {
		return SessionSnapshot{}, wrapf(ErrNoSuchEntry, "find: no session for %s toward %s", proto, dst6)
	}
	return s.Snapshot(), nil
}

// Counters is the admin-facing summary of table/session/stored-packet
// sizes. It carries no per-mark taddr accounting, and neither does
// dbmetrics: the pool4 mark-to-address accounting lives outside this
// package.
type Counters struct {
	BIBEntries   map[Protocol]int
	Sessions     map[Protocol]int
	StoredPkts   map[Protocol]int
}

// Counters snapshots the current size of every table.
func (db *Database) Counters() Counters {
	c := Counters{
		BIBEntries: make(map[Protocol]int, 3),
		Sessions:   make(map[Protocol]int, 3),
		StoredPkts: make(map[Protocol]int, 3),
	}
	for _, t := range db.tables() {
		c.BIBEntries[t.proto] = t.BIBCount()
		c.Sessions[t.proto] = t.SessionCount()
		c.StoredPkts[t.proto] = t.StoredPacketCount()
	}
	return c
}

// Clean is the timer-sweep entry point: it sweeps est/trans/syn4 for all
// three tables (fanned out with errgroup, since each table's lock is
// independent) plus the TCP type-1 queue, then drains every probe/ICMP
// emission outside any lock, single-threaded.
func (db *Database) Clean(now time.Time) {
	var g errgroup.Group
	results := make([][]postSweepEvent, len(db.tables()))

	for i, t := range db.tables() {
		i, t := i, t
		g.Go(func() error {
			results[i] = t.sweep(now)
			return nil
		})
	}
	_ = g.Wait() // sweep never returns an error; errgroup just fans out the lock acquisitions

	for _, events := range results {
		for _, ev := range events {
			db.drain(ev)
		}
	}
}

// postSweepEvent is the post-unlock work item a table's sweep hands
// back: a probe to send, an ICMP error to emit, or nothing (for plain
// RM/preserve outcomes that need no emission).
type postSweepEvent struct {
	kind    postSweepKind
	proto   Protocol
	session SessionSnapshot
	src4    TransportAddr
	dst4    TransportAddr
	packet  []byte
}

type postSweepKind uint8

const (
	postSweepNone postSweepKind = iota
	postSweepProbe
	postSweepICMP
)

func (db *Database) drain(ev postSweepEvent) {
	switch ev.kind {
	case postSweepProbe:
		db.hooks.probe(ev.session)
	case postSweepICMP:
		db.hooks.icmpUnreachable(ev.proto, ev.src4, ev.dst4, ev.packet)
	}
}
