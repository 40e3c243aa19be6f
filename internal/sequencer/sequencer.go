// Package sequencer runs the configured topologies strictly one after another,
// wiring for each run a record stream, a collector and a scheduler.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/engine/collector"
	"Go2FlowLabel/internal/engine/labeler"
	"Go2FlowLabel/internal/engine/stream"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/scheduler"
	"Go2FlowLabel/internal/topology"
	"Go2FlowLabel/internal/writer/summary"
)

const (
	defaultPauseBetween = 30 * time.Second
	defaultSetupTimeout = 60 * time.Second
)

// Environment bundles the external collaborators of a run.
type Environment struct {
	Emulator model.Emulator
	Links    model.LinkProvider
	Traffic  model.TrafficGenerator
}

// WriterOpener opens the record writers of one topology run.
type WriterOpener func(topology string) ([]stream.NamedWriter, error)

// ActiveRun describes the topology currently running.
type ActiveRun struct {
	Topology  string
	Index     int
	Started   time.Time
	Collector *collector.Collector
	Scheduler *scheduler.Scheduler
}

// RunResult is the outcome of one topology run.
type RunResult struct {
	Topology    string          `json:"topology"`
	Index       int             `json:"index"`
	Started     time.Time       `json:"started"`
	Finished    time.Time       `json:"finished"`
	SetupFailed bool            `json:"setup_failed"`
	Interrupted bool            `json:"interrupted"`
	Stats       collector.Stats `json:"stats"`
	Counts      stream.Counts   `json:"counts"`
	Err         error           `json:"-"`
}

// Observer is notified when topology runs start and finish.
type Observer interface {
	RunStarted(run ActiveRun)
	RunFinished(result RunResult)
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithWriters sets how record writers are opened for each topology.
func WithWriters(open WriterOpener) Option {
	return func(s *Sequencer) { s.openWriters = open }
}

// WithTaps adds non-blocking consumers of every emitted batch.
func WithTaps(taps ...stream.Tap) Option {
	return func(s *Sequencer) { s.taps = append(s.taps, taps...) }
}

// WithWindowObservers adds observers of every published attack window.
func WithWindowObservers(obs ...model.WindowObserver) Option {
	return func(s *Sequencer) { s.windowObservers = append(s.windowObservers, obs...) }
}

// WithObservers adds run lifecycle observers.
func WithObservers(obs ...Observer) Option {
	return func(s *Sequencer) { s.observers = append(s.observers, obs...) }
}

// Sequencer drives the topology sequence.
type Sequencer struct {
	cfg      *config.Config
	env      Environment
	labeler  *labeler.Labeler
	settings collector.Settings

	pause        time.Duration
	setupTimeout time.Duration

	openWriters     WriterOpener
	taps            []stream.Tap
	windowObservers []model.WindowObserver
	observers       []Observer
}

// New resolves the configuration into a sequencer.
func New(cfg *config.Config, env Environment, opts ...Option) (*Sequencer, error) {
	if env.Emulator == nil || env.Links == nil || env.Traffic == nil {
		return nil, errors.New("sequencer needs an emulator, a link provider and a traffic generator")
	}
	l, err := labeler.NewFromConfig(cfg.Labeler)
	if err != nil {
		return nil, err
	}
	settings, err := collector.SettingsFromConfig(cfg.Collector)
	if err != nil {
		return nil, err
	}
	pause, err := config.Duration(cfg.Sequencer.PauseBetween, defaultPauseBetween)
	if err != nil {
		return nil, fmt.Errorf("invalid pause_between: %w", err)
	}
	setupTimeout, err := config.Duration(cfg.Sequencer.SetupTimeout, defaultSetupTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid setup_timeout: %w", err)
	}
	if setupTimeout <= 0 {
		setupTimeout = defaultSetupTimeout
	}

	s := &Sequencer{
		cfg:          cfg,
		env:          env,
		labeler:      l,
		settings:     settings,
		pause:        pause,
		setupTimeout: setupTimeout,
		openWriters:  func(string) ([]stream.NamedWriter, error) { return nil, nil },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run executes every configured topology in order and returns one result per
// topology started. A setup failure only skips its topology. Cancelling ctx
// drains the current topology and ends the sequence with ctx.Err().
func (s *Sequencer) Run(ctx context.Context) ([]RunResult, error) {
	var results []RunResult
	for i, def := range s.cfg.Topologies {
		if ctx.Err() != nil {
			break
		}
		res := s.runTopology(ctx, i, def)
		results = append(results, res)
		for _, o := range s.observers {
			o.RunFinished(res)
		}
		if res.Interrupted {
			break
		}

		if i < len(s.cfg.Topologies)-1 && s.pause > 0 {
			logger.SeqLog.Infof("Pausing %s before the next topology", s.pause)
			select {
			case <-time.After(s.pause):
			case <-ctx.Done():
			}
		}
	}

	if err := ctx.Err(); err != nil {
		logger.SeqLog.Warnf("Sequence interrupted after %d of %d topologies", len(results), len(s.cfg.Topologies))
		return results, err
	}
	logger.SeqLog.Infof("Sequence complete: %d topologies", len(results))
	return results, nil
}

func (s *Sequencer) runTopology(ctx context.Context, index int, def config.TopologyDef) (res RunResult) {
	res = RunResult{Topology: def.Name, Index: index, Started: time.Now()}
	log := logger.SeqLog.WithField("topology", def.Name)
	log.Infof("Starting topology %d/%d (%s)", index+1, len(s.cfg.Topologies), def.Kind)

	setupFailed := func(err error) RunResult {
		res.SetupFailed = true
		res.Err = &model.TopologySetupError{Topology: def.Name, Err: err}
		res.Finished = time.Now()
		log.Errorf("%v", res.Err)
		return res
	}

	desc, err := topology.Build(def)
	if err != nil {
		return setupFailed(err)
	}
	writers, err := s.openWriters(def.Name)
	if err != nil {
		return setupFailed(fmt.Errorf("failed to open writers: %w", err))
	}
	if root := s.cfg.Summary.RootPath; root != "" {
		writers = append(writers, stream.NamedWriter{Name: "summary", Writer: summary.NewWriter(root, def.Name, res.Started)})
	}
	out := stream.New(def.Name, writers, s.taps...)
	// Runs last: the stream is closed after the topology is torn down.
	defer func() {
		if err := out.Close(); err != nil {
			log.Errorf("Record stream closed with errors: %v", err)
		}
		res.Counts = out.Counts()
		res.Finished = time.Now()
	}()

	bg := context.WithoutCancel(ctx)
	setupCtx, cancel := context.WithTimeout(ctx, s.setupTimeout)
	defer cancel()

	handle, err := s.env.Emulator.CreateTopology(setupCtx, desc)
	if err != nil {
		return setupFailed(fmt.Errorf("failed to create topology: %w", err))
	}
	defer func() {
		teardownCtx, cancel := context.WithTimeout(bg, s.setupTimeout)
		defer cancel()
		if err := s.env.Emulator.DestroyTopology(teardownCtx, handle); err != nil {
			log.Warnf("Teardown failed, continuing: %v", err)
		}
	}()

	hosts, err := s.env.Emulator.ListHosts(setupCtx, handle)
	if err != nil {
		return setupFailed(fmt.Errorf("failed to list hosts: %w", err))
	}
	links, err := s.env.Links.Links(handle)
	if err != nil {
		return setupFailed(fmt.Errorf("failed to open switch links: %w", err))
	}
	sched, err := scheduler.New(def.Name, index, s.cfg.SchedulerFor(def), hosts, s.env.Traffic,
		scheduler.WithObservers(s.windowObservers...),
		scheduler.WithWindowBuffer(s.cfg.Collector.WindowBuffer))
	if err != nil {
		return setupFailed(err)
	}
	coll := collector.New(def.Name, links, s.labeler, out, sched.Windows(), s.settings)

	for _, o := range s.observers {
		o.RunStarted(ActiveRun{Topology: def.Name, Index: index, Started: res.Started, Collector: coll, Scheduler: sched})
	}

	collDone := make(chan error, 1)
	go func() { collDone <- coll.Run(ctx) }()

	schedErr := sched.Run(ctx)
	coll.Drain()
	collErr := <-collDone

	res.Stats = coll.Stats()
	res.Interrupted = ctx.Err() != nil
	res.Err = errors.Join(ignoreCancel(schedErr), collErr)
	if res.Err != nil {
		log.Errorf("Topology run failed: %v", res.Err)
	}
	log.Infof("Topology finished: %d cycles, %d records, %d positive", res.Stats.Cycles, res.Stats.Records, res.Stats.Positives)
	return res
}

// ignoreCancel drops the error a scheduler returns when the operator interrupts.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
