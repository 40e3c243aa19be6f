package api

import (
	"context"
	"sync"
	"time"

	"Go2FlowLabel/internal/engine/collector"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/sequencer"
	"Go2FlowLabel/internal/window"
)

// Status tracks the running sequence for the HTTP API. It implements
// sequencer.Observer and model.WindowObserver.
type Status struct {
	mu        sync.RWMutex
	active    *sequencer.ActiveRun
	windows   map[string]model.AttackWindow
	completed []RunView
}

// RunView is the JSON form of a finished run.
type RunView struct {
	sequencer.RunResult
	Error string `json:"error,omitempty"`
}

// CurrentView is the JSON form of the running topology.
type CurrentView struct {
	Topology       string          `json:"topology"`
	Index          int             `json:"index"`
	Started        time.Time       `json:"started"`
	CollectorState string          `json:"collector_state"`
	SchedulerState string          `json:"scheduler_state"`
	Stats          collector.Stats `json:"stats"`
	Window         window.View     `json:"window"`
}

// StatusView is the body of GET /api/v1/status.
type StatusView struct {
	Running   bool         `json:"running"`
	Current   *CurrentView `json:"current,omitempty"`
	Completed []RunView    `json:"completed"`
}

// NewStatus creates an empty tracker.
func NewStatus() *Status {
	return &Status{windows: make(map[string]model.AttackWindow)}
}

// RunStarted records the topology now running.
func (s *Status) RunStarted(run sequencer.ActiveRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &run
}

// RunFinished moves a run to the completed list.
func (s *Status) RunFinished(res sequencer.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := RunView{RunResult: res}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	s.completed = append(s.completed, v)
	if s.active != nil && s.active.Topology == res.Topology {
		s.active = nil
	}
}

// ObserveWindow keeps the newest window of each topology.
func (s *Status) ObserveWindow(_ context.Context, w model.AttackWindow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.windows[w.TopologyID]; !ok || w.Version >= cur.Version {
		s.windows[w.TopologyID] = w
	}
}

// Running reports whether a topology is being collected.
func (s *Status) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

// View returns the status snapshot served by the API.
func (s *Status) View() StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v := StatusView{Completed: append([]RunView{}, s.completed...)}
	if run := s.active; run != nil {
		v.Running = true
		v.Current = &CurrentView{
			Topology:       run.Topology,
			Index:          run.Index,
			Started:        run.Started,
			CollectorState: run.Collector.State(),
			SchedulerState: run.Scheduler.State(),
			Stats:          run.Collector.Stats(),
			Window:         window.ViewOf(s.windows[run.Topology]),
		}
	}
	return v
}

// Window returns the newest window of a topology.
func (s *Status) Window(topology string) (window.View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.windows[topology]
	return window.ViewOf(w), ok
}
