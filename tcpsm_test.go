package bib

import (
	"testing"
	"time"
)

func TestTransitionNormalOpen(t *testing.T) {
	state, fate, timer := transition(StateV6Init, FromV4, PacketFlags{SYN: true})
	if state != StateEstablished || fate != FateTimerEst || timer != TimerEst {
		t.Fatalf("V6_INIT + peer SYN = (%v, %v, %v), want (ESTABLISHED, FateTimerEst, est)", state, fate, timer)
	}
}

func TestTransitionV6InitRejectedByRST(t *testing.T) {
	state, fate, _ := transition(StateV6Init, FromV4, PacketFlags{RST: true})
	if state != StateV6Init || fate != FateRM {
		t.Fatalf("V6_INIT + peer RST = (%v, %v), want (V6_INIT, FateRM)", state, fate)
	}
}

func TestTransitionEstablishedRSTMovesToTrans(t *testing.T) {
	state, fate, timer := transition(StateEstablished, FromV6, PacketFlags{RST: true})
	if state != StateTrans || fate != FateTimerTrans || timer != TimerTrans {
		t.Fatalf("ESTABLISHED + RST = (%v, %v, %v), want (TRANS, FateTimerTrans, trans)", state, fate, timer)
	}
}

func TestTransitionBothSidesFinRemoves(t *testing.T) {
	state, fate, _ := transition(StateV4FinRcv, FromV6, PacketFlags{FIN: true})
	if state != StateV4FinV6FinRcv || fate != FateRM {
		t.Fatalf("V4_FIN_RCV + v6 FIN = (%v, %v), want (V4_FIN_V6_FIN_RCV, FateRM)", state, fate)
	}
}

func TestTransitionV4InitAwaitsV6SYN(t *testing.T) {
	state, fate, timer := transition(StateV4Init, FromV4, PacketFlags{ACK: true})
	if state != StateV4Init || fate != FatePreserve || timer != TimerSyn4 {
		t.Fatalf("V4_INIT + unrelated v4 packet = (%v, %v, %v), want (V4_INIT, FatePreserve, syn4)", state, fate, timer)
	}

	state, fate, timer = transition(StateV4Init, FromV6, PacketFlags{SYN: true})
	if state != StateEstablished || fate != FateTimerEst || timer != TimerEst {
		t.Fatalf("V4_INIT + v6 SYN = (%v, %v, %v), want (ESTABLISHED, FateTimerEst, est)", state, fate, timer)
	}
}

func TestTransitionRecoversFromTransOnResumedTraffic(t *testing.T) {
	state, fate, _ := transition(StateTrans, FromV6, PacketFlags{ACK: true})
	if state != StateEstablished || fate != FateTimerEst {
		t.Fatalf("TRANS + resumed ACK = (%v, %v), want (ESTABLISHED, FateTimerEst)", state, fate)
	}
}

func TestDefaultSMCallbackStampsUpdateTime(t *testing.T) {
	now := time.Now()
	snap := SessionSnapshot{State: StateEstablished}
	d := defaultSMCallback(snap, FromV6, PacketFlags{FIN: true}, now)
	if !d.UpdateTime.Equal(now) {
		t.Fatalf("defaultSMCallback should stamp the decision's UpdateTime with now")
	}
	if d.NewState != StateV6FinRcv {
		t.Fatalf("defaultSMCallback NewState = %v, want V6_FIN_RCV", d.NewState)
	}
}
