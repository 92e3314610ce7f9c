package bib

import "time"

// A Config zero value is not ready to use; call DefaultConfig and
// override what's needed. The engine has meaningful defaults worth
// naming explicitly rather than worth being absent.
type Config struct {
	// EstTCP, EstUDP, EstICMP are the established-session timeouts for
	// each protocol's est timer list.
	EstTCP  time.Duration
	EstUDP  time.Duration
	EstICMP time.Duration

	// MinEstUDP is the floor applied to a configured EstUDP.
	MinEstUDP time.Duration

	// Trans is the TCP transitory-session timeout (trans timer list;
	// meaningful for TCP only).
	Trans time.Duration

	// Syn4 is the timeout for TCP sessions parked in V4_INIT awaiting a
	// v6 response (syn4 timer list).
	Syn4 time.Duration

	// MaxStoredPkts bounds the packet queue (type-1) and the number of
	// provisional (type-2) sessions a table will hold at once.
	MaxStoredPkts int

	// DropExternalTCP, when true, refuses to store a type-1 packet for a
	// v4-initiated TCP SYN with no existing BIB.
	DropExternalTCP bool

	// AddressDependentFiltering gates the ADF check on the 4->6 path.
	AddressDependentFiltering bool

	// LogBIBEvents and LogSessionEvents turn on the lifecycle lines this
	// package emits. New sets one per-table flag when either is true, so
	// each of them enables both the BIB lines and the session lines; the
	// two classes are not gated separately.
	LogBIBEvents     bool
	LogSessionEvents bool

	// MinSweepInterval is a sweep cadence (a quarter second by default)
	// for callers that drive Clean on a timer. Clean itself does not
	// enforce it: every call sweeps.
	MinSweepInterval time.Duration

	Pool6 Pool6Prefix
}

// DefaultConfig returns the engine's default timeouts and limits.
func DefaultConfig() Config {
	return Config{
		EstTCP:                    2 * time.Hour,
		EstUDP:                    5 * time.Minute,
		EstICMP:                   1 * time.Minute,
		MinEstUDP:                 2 * time.Minute,
		Trans:                     4 * time.Minute,
		Syn4:                      6 * time.Second,
		MaxStoredPkts:             10,
		DropExternalTCP:           false,
		AddressDependentFiltering: false,
		LogBIBEvents:              false,
		LogSessionEvents:          false,
		MinSweepInterval:          250 * time.Millisecond,
	}
}

// estTimeout returns the applicable established-session timeout for
// proto, clamping UDP to its configured floor.
func (c Config) estTimeout(proto Protocol) time.Duration {
	switch proto {
	case ProtoTCP:
		return c.EstTCP
	case ProtoUDP:
		if c.EstUDP < c.MinEstUDP {
			return c.MinEstUDP
		}
		return c.EstUDP
	case ProtoICMP:
		return c.EstICMP
	default:
		return c.EstICMP
	}
}
