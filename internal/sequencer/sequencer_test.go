package sequencer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/emulator/sim"
	"Go2FlowLabel/internal/engine/stream"
	"Go2FlowLabel/internal/model"
)

type memWriter struct {
	mu      sync.Mutex
	records []model.LabeledRecord
	closed  bool
}

func (w *memWriter) Write(records []model.LabeledRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, records...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type memWriters struct {
	mu     sync.Mutex
	byTopo map[string]*memWriter
}

func (m *memWriters) open(topology string) ([]stream.NamedWriter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byTopo == nil {
		m.byTopo = make(map[string]*memWriter)
	}
	w := &memWriter{}
	m.byTopo[topology] = w
	return []stream.NamedWriter{{Name: "mem", Writer: w}}, nil
}

func (m *memWriters) get(topology string) *memWriter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byTopo[topology]
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (o *recordingObserver) RunStarted(run ActiveRun) {
	o.mu.Lock()
	o.started = append(o.started, run.Topology)
	o.mu.Unlock()
}

func (o *recordingObserver) RunFinished(res RunResult) {
	o.mu.Lock()
	o.finished = append(o.finished, res.Topology)
	o.mu.Unlock()
}

// failingEmulator refuses to create topologies.
type failingEmulator struct {
	*sim.Network
}

func (f failingEmulator) CreateTopology(context.Context, model.TopologyDesc) (*model.TopologyHandle, error) {
	return nil, errors.New("mininet did not come up")
}

// stickyEmulator cannot tear topologies down.
type stickyEmulator struct {
	*sim.Network
}

func (s stickyEmulator) DestroyTopology(context.Context, *model.TopologyHandle) error {
	return errors.New("mininet cleanup failed")
}

func testConfig(defs ...config.TopologyDef) *config.Config {
	return &config.Config{
		Collector: config.CollectorConfig{PollInterval: "30ms", RequestTimeout: "20ms", DrainTimeout: "200ms"},
		Scheduler: config.SchedulerConfig{
			Runtime: "600ms", Warmup: "60ms", Cooldown: "60ms",
			AttackShare: 0.5, AttackPhases: 1, AttackFraction: 0.25, Seed: 7,
		},
		Sequencer:  config.SequencerConfig{PauseBetween: "0s", SetupTimeout: "1s"},
		Topologies: defs,
	}
}

var (
	linearDef = config.TopologyDef{Name: "linear", Kind: "linear", NumSwitches: 2, HostsPerSwitch: 2}
	treeDef   = config.TopologyDef{Name: "tree", Kind: "tree", NumSwitches: 3, HostsPerSwitch: 2}
)

func simEnv(net *sim.Network) Environment {
	return Environment{Emulator: net, Links: net, Traffic: net}
}

// checkLifecycles verifies that every flow's last record is its single terminal record.
func checkLifecycles(t *testing.T, records []model.LabeledRecord) {
	t.Helper()
	last := make(map[model.FlowIdentity]model.LabeledRecord)
	terminals := make(map[model.FlowIdentity]int)
	for _, r := range records {
		last[r.Identity] = r
		if r.Terminal {
			terminals[r.Identity]++
		}
	}
	for id, r := range last {
		if !r.Terminal {
			t.Errorf("Flow %s never got a terminal record", id.Key())
		}
		if terminals[id] != 1 {
			t.Errorf("Flow %s has %d terminal records", id.Key(), terminals[id])
		}
	}
}

func TestRun_AllTopologies(t *testing.T) {
	cfg := testConfig(linearDef, treeDef)
	cfg.Summary.RootPath = t.TempDir()
	writers := &memWriters{}
	obs := &recordingObserver{}

	seq, err := New(cfg, simEnv(sim.New()), WithWriters(writers.open), WithObservers(obs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	for _, res := range results {
		if res.Err != nil || res.SetupFailed || res.Interrupted {
			t.Errorf("Topology %s did not complete cleanly: %+v", res.Topology, res)
		}
		if res.Counts.Records == 0 || res.Counts.Positives == 0 || res.Counts.Positives == res.Counts.Records {
			t.Errorf("Topology %s should produce both classes, got %+v", res.Topology, res.Counts)
		}
		w := writers.get(res.Topology)
		if !w.closed {
			t.Errorf("Writer of %s was not closed", res.Topology)
		}
		if uint64(len(w.records)) != res.Counts.Records {
			t.Errorf("Writer of %s got %d records, stream counted %d", res.Topology, len(w.records), res.Counts.Records)
		}
		for _, r := range w.records {
			if r.Topology != res.Topology {
				t.Errorf("Record of %s leaked into %s", r.Topology, res.Topology)
				break
			}
		}
		checkLifecycles(t, w.records)

		if _, err := os.Stat(filepath.Join(cfg.Summary.RootPath, res.Topology, "summary.json")); err != nil {
			t.Errorf("Missing summary for %s: %v", res.Topology, err)
		}
	}

	if len(obs.started) != 2 || len(obs.finished) != 2 || obs.started[1] != "tree" {
		t.Errorf("Unexpected observer calls: started %v, finished %v", obs.started, obs.finished)
	}
}

func TestRun_SetupFailureSkipsTopology(t *testing.T) {
	cfg := testConfig(config.TopologyDef{Name: "torus", Kind: "torus"}, linearDef)
	writers := &memWriters{}
	seq, err := New(cfg, simEnv(sim.New()), WithWriters(writers.open))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	var setupErr *model.TopologySetupError
	if !results[0].SetupFailed || !errors.As(results[0].Err, &setupErr) || setupErr.Topology != "torus" {
		t.Errorf("Expected a setup failure for torus, got %+v", results[0])
	}
	if results[1].Err != nil || results[1].Counts.Records == 0 {
		t.Errorf("The next topology should still run, got %+v", results[1])
	}
}

func TestRun_EmulatorFailureClosesStream(t *testing.T) {
	net := sim.New()
	writers := &memWriters{}
	seq, err := New(testConfig(linearDef), Environment{Emulator: failingEmulator{net}, Links: net, Traffic: net}, WithWriters(writers.open))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(results) != 1 || !results[0].SetupFailed {
		t.Fatalf("Expected a setup failure, got %+v", results)
	}
	w := writers.get("linear")
	if w == nil || !w.closed || len(w.records) != 0 {
		t.Errorf("The stream should be opened and closed empty, got %+v", w)
	}
}

func TestRun_InterruptDrainsAndStops(t *testing.T) {
	cfg := testConfig(linearDef, treeDef)
	cfg.Scheduler.Runtime = "5s"
	cfg.Scheduler.Warmup = "100ms"
	cfg.Scheduler.Cooldown = "100ms"
	writers := &memWriters{}
	seq, err := New(cfg, simEnv(sim.New()), WithWriters(writers.open))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(400*time.Millisecond, cancel)

	done := make(chan struct{})
	var (
		results []RunResult
		runErr  error
	)
	go func() {
		results, runErr = seq.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Sequence did not stop after the interrupt")
	}

	if !errors.Is(runErr, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", runErr)
	}
	if len(results) != 1 || !results[0].Interrupted || results[0].Err != nil {
		t.Fatalf("Expected one interrupted run, got %+v", results)
	}
	w := writers.get("linear")
	if len(w.records) == 0 {
		t.Fatal("Interrupted run should keep its records")
	}
	checkLifecycles(t, w.records)
	if writers.get("tree") != nil {
		t.Error("The sequence should stop after the interrupted topology")
	}
}

func TestRun_TeardownFailureContinues(t *testing.T) {
	net := sim.New()
	writers := &memWriters{}
	env := Environment{Emulator: stickyEmulator{net}, Links: net, Traffic: net}
	seq, err := New(testConfig(linearDef, treeDef), env, WithWriters(writers.open))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	results, err := seq.Run(context.Background())
	if err != nil {
		t.Fatalf("A teardown failure must not stop the sequence, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if res.Err != nil || res.SetupFailed {
			t.Errorf("Topology %s should keep a clean result, got %+v", res.Topology, res)
		}
		w := writers.get(res.Topology)
		if w == nil || !w.closed || len(w.records) == 0 {
			t.Errorf("Topology %s should keep its closed output, got %+v", res.Topology, w)
			continue
		}
		checkLifecycles(t, w.records)
	}
}

func TestNew_RequiresEnvironment(t *testing.T) {
	if _, err := New(testConfig(linearDef), Environment{}); err == nil {
		t.Error("Expected an error for a missing environment")
	}
}
