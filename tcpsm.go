package bib

import "time"

// Direction identifies which side of the translator a TCP packet arrived
// from, driving the state machine (RFC 6146 §3.5.2).
type Direction uint8

const (
	FromV6 Direction = iota
	FromV4
)

// PacketFlags is the minimal TCP flag summary the state machine needs.
// The translator, out of scope for this package, extracts these from the
// real TCP header before calling into the database.
type PacketFlags struct {
	SYN bool
	FIN bool
	RST bool
	ACK bool
}

// transition is the pure decision function exposed in place of mixing
// the state machine into a caller-supplied callback: given a session's
// current state, which side the packet arrived from, and its flags, it
// returns the session's next state, the fate to act on, and (for
// FateTimerSlow) which timer list to target.
//
// This follows RFC 6146 §3.5.2's TCP state machine; transition is the
// default collision callback and the only one most callers need. The
// session-sync import and forced-expiry paths bypass it by supplying
// their own callback to AddTCP6/AddTCP4.
func transition(state TCPState, dir Direction, flags PacketFlags) (newState TCPState, fate Fate, timer TimerKind) {
	switch state {
	case StateV6Init:
		switch {
		case dir == FromV4 && flags.SYN:
			// the peer's SYN arrived: simultaneous/normal open completes.
			return StateEstablished, FateTimerEst, TimerEst
		case dir == FromV4 && (flags.RST || flags.FIN):
			return StateV6Init, FateRM, TimerTrans
		default:
			// touch only; keep waiting on trans until the peer SYNs.
			return StateV6Init, FateTimerTrans, TimerTrans
		}

	case StateV4Init:
		switch {
		case dir == FromV6 && flags.SYN:
			return StateEstablished, FateTimerEst, TimerEst
		case dir == FromV6 && (flags.RST || flags.FIN):
			return StateV4Init, FateRM, TimerSyn4
		default:
			return StateV4Init, FatePreserve, TimerSyn4
		}

	case StateEstablished:
		switch {
		case flags.RST:
			return StateTrans, FateTimerTrans, TimerTrans
		case flags.FIN && dir == FromV4:
			return StateV4FinRcv, FateTimerTrans, TimerTrans
		case flags.FIN && dir == FromV6:
			return StateV6FinRcv, FateTimerTrans, TimerTrans
		default:
			return StateEstablished, FateTimerEst, TimerEst
		}

	case StateV4FinRcv:
		switch {
		case flags.FIN && dir == FromV6:
			return StateV4FinV6FinRcv, FateRM, TimerTrans
		default:
			return StateV4FinRcv, FateTimerTrans, TimerTrans
		}

	case StateV6FinRcv:
		switch {
		case flags.FIN && dir == FromV4:
			return StateV4FinV6FinRcv, FateRM, TimerTrans
		default:
			return StateV6FinRcv, FateTimerTrans, TimerTrans
		}

	case StateV4FinV6FinRcv:
		// both directions closed; nothing legitimate keeps this alive.
		return StateV4FinV6FinRcv, FateRM, TimerTrans

	case StateTrans:
		switch {
		case flags.SYN || flags.ACK:
			// legitimate traffic resumed after an RST; recover.
			return StateEstablished, FateTimerEst, TimerEst
		default:
			return StateTrans, FateTimerTrans, TimerTrans
		}

	default:
		return state, FateDrop, TimerTrans
	}
}

// decide wraps transition, stamping the returned FateDecision with now as
// its UpdateTime. It's the default SMCallback used by AddTCP6/AddTCP4
// whenever the caller doesn't supply its own (e.g. for session-sync
// import or a forced expiry override).
func decide(state TCPState, dir Direction, flags PacketFlags, now time.Time, hasStored bool) FateDecision {
	newState, fate, timer := transition(state, dir, flags)
	return FateDecision{
		Fate:       fate,
		NewState:   newState,
		UpdateTime: now,
		HasStored:  hasStored,
		TimerType:  timer,
	}
}

// SMCallback is the collision callback AddTCP6/AddTCP4 take: given the
// colliding session's snapshot, the direction the new packet arrived
// from, and its flags, it decides the session's fate. The zero value of
// this type is nil; AddTCP6/AddTCP4 fall back to decide (i.e.
// transition) when no callback is supplied.
type SMCallback func(snapshot SessionSnapshot, dir Direction, flags PacketFlags, now time.Time) FateDecision

func defaultSMCallback(snapshot SessionSnapshot, dir Direction, flags PacketFlags, now time.Time) FateDecision {
	return decide(snapshot.State, dir, flags, now, snapshot.HasStored)
}
