// Package dbmetrics exports the BIB/session database's counters query as
// Prometheus metrics, so a scrape and the admin-facing counters RPC
// share one source of truth. The bib package keeps the entry and session
// gauges current; it never calls SetStoredPackets, so the stored-packet
// gauge stays unset.
//
// Grounded on github.com/prometheus/client_golang, required directly by
// both gravitational/teleport and erigontech/erigon.
package dbmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the gauges and counters the database updates on its
// data-plane and admin paths. A nil *Metrics is valid and every method is
// a no-op on it, so metrics wiring is optional.
type Metrics struct {
	bibEntries     *prometheus.GaugeVec
	sessions       *prometheus.GaugeVec
	storedPackets  *prometheus.GaugeVec
	maskExhausted  *prometheus.CounterVec
	adfRejections  *prometheus.CounterVec
	sessionsClosed *prometheus.CounterVec
}

// New constructs a Metrics and registers its collectors with reg. If reg
// is nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		bibEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "entries",
			Help:      "Current number of BIB entries, by protocol.",
		}, []string{"proto"}),
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "sessions",
			Help:      "Current number of sessions, by protocol.",
		}, []string{"proto"}),
		storedPackets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "stored_packets",
			Help:      "Current number of packets held for Simultaneous Open, by protocol.",
		}, []string{"proto"}),
		maskExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "mask_exhausted_total",
			Help:      "Number of times a pool4 mask domain was exhausted, by mark.",
		}, []string{"mark"}),
		adfRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "adf_rejections_total",
			Help:      "Number of inbound flows rejected by Address-Dependent Filtering, by protocol.",
		}, []string{"proto"}),
		sessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nat64",
			Subsystem: "bib",
			Name:      "sessions_closed_total",
			Help:      "Number of sessions removed, by protocol and reason.",
		}, []string{"proto", "reason"}),
	}

	reg.MustRegister(m.bibEntries, m.sessions, m.storedPackets, m.maskExhausted, m.adfRejections, m.sessionsClosed)
	return m
}

// SetBIBEntries records the current BIB entry count for proto.
func (m *Metrics) SetBIBEntries(proto string, n int) {
	if m == nil {
		return
	}
	m.bibEntries.WithLabelValues(proto).Set(float64(n))
}

// SetSessions records the current session count for proto.
func (m *Metrics) SetSessions(proto string, n int) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(proto).Set(float64(n))
}

// SetStoredPackets records the current stored-packet count for proto.
func (m *Metrics) SetStoredPackets(proto string, n int) {
	if m == nil {
		return
	}
	m.storedPackets.WithLabelValues(proto).Set(float64(n))
}

// IncMaskExhausted records one mask-domain exhaustion for the given pool4
// mark. The bib package logs no warning on exhaustion; this counter and
// the returned ErrNoFreeAddress are its only traces.
func (m *Metrics) IncMaskExhausted(mark string) {
	if m == nil {
		return
	}
	m.maskExhausted.WithLabelValues(mark).Inc()
}

// IncADFRejection records one Address-Dependent-Filtering rejection for
// proto.
func (m *Metrics) IncADFRejection(proto string) {
	if m == nil {
		return
	}
	m.adfRejections.WithLabelValues(proto).Inc()
}

// IncSessionsClosed records one session removal for proto, tagged with a
// short reason (e.g. "rm", "timeout", "flush").
func (m *Metrics) IncSessionsClosed(proto, reason string) {
	if m == nil {
		return
	}
	m.sessionsClosed.WithLabelValues(proto, reason).Inc()
}
