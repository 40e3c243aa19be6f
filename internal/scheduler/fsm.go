package scheduler

import (
	"context"

	"Go2FlowLabel/internal/logger"

	"github.com/looplab/fsm"
)

const (
	PendingState          string = "Pending"
	WarmupState           string = "Warmup"
	SteadyBackgroundState string = "SteadyBackground"
	AttackingState        string = "Attacking"
	CoolDownState         string = "CoolDown"
	DoneState             string = "Done"
)

const (
	BeginEvent    string = "begin"
	SteadyEvent   string = "steady"
	AttackEvent   string = "attack"
	CoolDownEvent string = "cooldown"
	FinishEvent   string = "finish"
	AbortEvent    string = "abort"
)

var schedulerEvents = fsm.Events{
	{Name: BeginEvent, Src: []string{PendingState}, Dst: WarmupState},
	{Name: SteadyEvent, Src: []string{WarmupState, AttackingState}, Dst: SteadyBackgroundState},
	{Name: AttackEvent, Src: []string{SteadyBackgroundState}, Dst: AttackingState},
	{Name: CoolDownEvent, Src: []string{AttackingState}, Dst: CoolDownState},
	{Name: FinishEvent, Src: []string{CoolDownState}, Dst: DoneState},
	{Name: AbortEvent, Src: []string{PendingState, WarmupState, SteadyBackgroundState, AttackingState, CoolDownState}, Dst: DoneState},
}

func newSchedulerFSM(topology string) *fsm.FSM {
	return fsm.NewFSM(
		PendingState,
		schedulerEvents,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.SchedLog.Infof("Topology %q: %s -> %s", topology, e.Src, e.Dst)
			},
		},
	)
}
