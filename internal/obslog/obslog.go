// Package obslog emits the GMT-timestamped BIB/session lifecycle lines
// ("Mapped", "Added session", "Forgot", "Forgot session"), gated by a
// per-table enable flag.
//
// Built on github.com/sirupsen/logrus, the logging library required by
// both gravitational/teleport and erigontech/erigon, and used for this
// same "connection tracker add/remove" shape elsewhere in the ecosystem.
package obslog

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps a *logrus.Entry pre-tagged with the owning table's
// protocol, gated by an atomic enable flag so the data-plane hot path
// only pays for a field map build when logging is actually on.
type Logger struct {
	entry   *logrus.Entry
	enabled atomic.Bool
}

// New returns a Logger that writes through base, tagged with proto.
func New(base *logrus.Logger, proto string) *Logger {
	if base == nil {
		base = logrus.StandardLogger()
	}
	return &Logger{entry: base.WithField("proto", proto)}
}

// SetEnabled turns the per-table log flag on or off.
func (l *Logger) SetEnabled(on bool) {
	if l == nil {
		return
	}
	l.enabled.Store(on)
}

// Enabled reports whether logging is currently on for this table.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled.Load()
}

// quintuple is the common field set for every BIB/session lifecycle line:
// the inside and outside transport addresses plus, for session events,
// the outside peer.
type quintuple struct {
	Src6 string
	Src4 string
	Dst6 string
	Dst4 string
}

func (l *Logger) line(verb string, q quintuple) {
	if !l.Enabled() {
		return
	}
	l.entry.WithTime(time.Now().UTC()).WithFields(logrus.Fields{
		"src6": q.Src6,
		"src4": q.Src4,
		"dst6": q.Dst6,
		"dst4": q.Dst4,
	}).Info(verb)
}

// Mapped logs BIB entry creation.
func (l *Logger) Mapped(src6, src4 string) {
	l.line("Mapped", quintuple{Src6: src6, Src4: src4})
}

// Forgot logs BIB entry removal.
func (l *Logger) Forgot(src6, src4 string) {
	l.line("Forgot", quintuple{Src6: src6, Src4: src4})
}

// AddedSession logs session creation.
func (l *Logger) AddedSession(src6, src4, dst6, dst4 string) {
	l.line("Added session", quintuple{Src6: src6, Src4: src4, Dst6: dst6, Dst4: dst4})
}

// ForgotSession logs session removal.
func (l *Logger) ForgotSession(src6, src4, dst6, dst4 string) {
	l.line("Forgot session", quintuple{Src6: src6, Src4: src4, Dst6: dst6, Dst4: dst4})
}
