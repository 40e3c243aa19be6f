package collector

import (
	"context"

	"Go2FlowLabel/internal/logger"

	"github.com/looplab/fsm"
)

const (
	IdleState     string = "Idle"
	PollingState  string = "Polling"
	DrainingState string = "Draining"
)

const (
	StartEvent  string = "start"
	DrainEvent  string = "drain"
	FinishEvent string = "finish"
)

var collectorEvents = fsm.Events{
	{Name: StartEvent, Src: []string{IdleState}, Dst: PollingState},
	{Name: DrainEvent, Src: []string{PollingState}, Dst: DrainingState},
	{Name: FinishEvent, Src: []string{DrainingState}, Dst: IdleState},
}

func newCollectorFSM(topology string) *fsm.FSM {
	return fsm.NewFSM(
		IdleState,
		collectorEvents,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.CollLog.Debugf("Collector %q: %s -> %s", topology, e.Src, e.Dst)
			},
		},
	)
}
