// Package collector polls switch flow tables, derives features, labels every
// observation and emits the labeled records of a topology run.
package collector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/engine/features"
	"Go2FlowLabel/internal/engine/labeler"
	"Go2FlowLabel/internal/engine/store"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/looplab/fsm"
)

// Emitter receives one batch of labeled records per poll cycle.
type Emitter interface {
	Emit(records []model.LabeledRecord) error
}

// Settings are the resolved collector parameters.
type Settings struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	DrainTimeout   time.Duration
	SkipTableMiss  bool
}

// DefaultSettings returns the settings used for unset config values.
func DefaultSettings() Settings {
	return Settings{
		PollInterval:   10 * time.Second,
		RequestTimeout: 3 * time.Second,
		DrainTimeout:   10 * time.Second,
		SkipTableMiss:  true,
	}
}

// SettingsFromConfig resolves the collector config block.
func SettingsFromConfig(cfg config.CollectorConfig) (Settings, error) {
	s := DefaultSettings()
	var err error
	if s.PollInterval, err = config.Duration(cfg.PollInterval, s.PollInterval); err != nil {
		return s, fmt.Errorf("invalid poll_interval: %w", err)
	}
	if s.RequestTimeout, err = config.Duration(cfg.RequestTimeout, s.RequestTimeout); err != nil {
		return s, fmt.Errorf("invalid request_timeout: %w", err)
	}
	if s.DrainTimeout, err = config.Duration(cfg.DrainTimeout, s.DrainTimeout); err != nil {
		return s, fmt.Errorf("invalid drain_timeout: %w", err)
	}
	if cfg.SkipTableMiss != nil {
		s.SkipTableMiss = *cfg.SkipTableMiss
	}
	if s.PollInterval <= 0 || s.RequestTimeout <= 0 || s.DrainTimeout <= 0 {
		return s, fmt.Errorf("collector intervals must be positive")
	}
	return s, nil
}

// Stats are the running totals of a collector.
type Stats struct {
	Cycles       uint64 `json:"cycles"`
	Records      uint64 `json:"records"`
	Terminal     uint64 `json:"terminal"`
	Positives    uint64 `json:"positives"`
	LinkFailures uint64 `json:"link_failures"`
	LiveFlows    int    `json:"live_flows"`
}

// Collector owns the flow sample store of one topology run. All store mutations
// and emissions happen on the goroutine running Run.
type Collector struct {
	topology string
	links    []model.SwitchLink
	store    *store.Store
	labeler  *labeler.Labeler
	out      Emitter
	windows  <-chan model.AttackWindow
	settings Settings

	// window is only touched by the Run goroutine.
	window model.AttackWindow

	fsm       *fsm.FSM
	drain     chan struct{}
	drainOnce sync.Once

	mu    sync.Mutex
	stats Stats
}

// New creates a collector for the given switch links. Window updates are read
// from windows; records go to out.
func New(topology string, links []model.SwitchLink, l *labeler.Labeler, out Emitter, windows <-chan model.AttackWindow, settings Settings) *Collector {
	sorted := make([]model.SwitchLink, len(links))
	copy(sorted, links)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].DatapathID() < sorted[j].DatapathID() })

	return &Collector{
		topology: topology,
		links:    sorted,
		store:    store.New(0),
		labeler:  l,
		out:      out,
		windows:  windows,
		settings: settings,
		fsm:      newCollectorFSM(topology),
		drain:    make(chan struct{}),
	}
}

// State returns the current state of the collector state machine.
func (c *Collector) State() string {
	return c.fsm.Current()
}

// Stats returns a copy of the running totals.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.LiveFlows = c.store.Len()
	return s
}

// Drain asks Run to perform a final poll, flush every live entry and return.
func (c *Collector) Drain() {
	c.drainOnce.Do(func() { close(c.drain) })
}

// Run polls until Drain is called or ctx is cancelled, then drains.
// The final poll runs on a context detached from ctx so an interrupt never drops flows.
func (c *Collector) Run(ctx context.Context) error {
	// Transitions use a detached context: the state machine refuses to move on a cancelled one.
	if err := c.fsm.Event(context.WithoutCancel(ctx), StartEvent); err != nil {
		return fmt.Errorf("failed to start collector: %w", err)
	}
	logger.CollLog.Infof("Collector started for topology %q with %d switches, polling every %s",
		c.topology, len(c.links), c.settings.PollInterval)

	ticker := time.NewTicker(c.settings.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.pollCycle(ctx)
		case <-c.drain:
			return c.runDrain(ctx)
		case <-ctx.Done():
			return c.runDrain(ctx)
		}
	}
}

func (c *Collector) runDrain(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.DrainTimeout)
	defer cancel()

	if err := c.fsm.Event(context.WithoutCancel(ctx), DrainEvent); err != nil {
		return fmt.Errorf("failed to enter draining: %w", err)
	}

	c.pollCycle(drainCtx)
	c.flush()

	if err := c.fsm.Event(context.WithoutCancel(ctx), FinishEvent); err != nil {
		return fmt.Errorf("failed to finish draining: %w", err)
	}
	st := c.Stats()
	logger.CollLog.Infof("Collector drained topology %q: %d cycles, %d records (%d positive, %d terminal), %d link failures",
		c.topology, st.Cycles, st.Records, st.Positives, st.Terminal, st.LinkFailures)
	return nil
}

// refreshWindow consumes every pending window update, keeping the newest.
func (c *Collector) refreshWindow() {
	for {
		select {
		case w, ok := <-c.windows:
			if !ok {
				c.windows = nil
				return
			}
			if w.Version >= c.window.Version {
				c.window = w
			}
		default:
			return
		}
	}
}

type fetchResult struct {
	obs []model.FlowObservation
	err error
}

// fetchAll queries every switch concurrently, each bounded by the request timeout.
// A link still busy at its deadline is abandoned and counts as timed out.
func (c *Collector) fetchAll(ctx context.Context) []fetchResult {
	results := make([]fetchResult, len(c.links))
	var wg sync.WaitGroup
	wg.Add(len(c.links))
	for i, link := range c.links {
		go func(i int, link model.SwitchLink) {
			defer wg.Done()
			reqCtx, cancel := context.WithTimeout(ctx, c.settings.RequestTimeout)
			defer cancel()

			reply := make(chan fetchResult, 1)
			go func() {
				obs, err := link.FetchFlows(reqCtx)
				reply <- fetchResult{obs: obs, err: err}
			}()
			select {
			case results[i] = <-reply:
			case <-reqCtx.Done():
				results[i] = fetchResult{err: fmt.Errorf("switch %d ignored its deadline: %w", link.DatapathID(), model.ErrLinkTimeout)}
			}
		}(i, link)
	}
	wg.Wait()
	return results
}

// pollCycle runs one poll: fetch, label, replace store entries, expire, emit.
func (c *Collector) pollCycle(ctx context.Context) {
	c.refreshWindow()
	window := c.window

	results := c.fetchAll(ctx)

	seen := make(map[model.FlowIdentity]struct{})
	answered := make(map[uint64]bool, len(c.links))
	var records []model.LabeledRecord
	var failures uint64

	for i, res := range results {
		dpid := c.links[i].DatapathID()
		if res.err != nil {
			failures++
			err := &model.TransientLinkError{DatapathID: dpid, Err: res.err}
			logger.CollLog.Warnf("Topology %q: %v", c.topology, err)
			continue
		}
		answered[dpid] = true

		obs := res.obs
		sort.SliceStable(obs, func(a, b int) bool { return obs[a].Identity.Key() < obs[b].Identity.Key() })
		for _, o := range obs {
			if c.settings.SkipTableMiss && o.Snapshot.Priority == 0 {
				continue
			}
			records = append(records, c.observe(o, seen, window))
		}
	}

	for _, o := range c.store.Expire(seen, answered) {
		records = append(records, c.terminalRecord(o, window))
	}

	c.emit(records, failures, true)
}

// observe labels one observation and replaces its store entry.
func (c *Collector) observe(o model.FlowObservation, seen map[model.FlowIdentity]struct{}, window model.AttackWindow) model.LabeledRecord {
	var prev *model.FlowSnapshot
	if _, dup := seen[o.Identity]; !dup {
		if p, ok := c.store.Get(o.Identity); ok {
			prev = &p
		}
	}
	seen[o.Identity] = struct{}{}

	fv := features.Compute(o.Identity, o.Snapshot, prev)
	v := c.labeler.Label(fv, o.Identity, o.Snapshot, window)
	c.store.Put(o.Identity, o.Snapshot)

	return model.LabeledRecord{
		Topology: c.topology,
		Identity: o.Identity,
		Snapshot: o.Snapshot,
		Features: fv,
		Label:    v.Label,
		Rule:     v.Rule,
	}
}

// terminalRecord builds the last record of a flow lifecycle from its final snapshot.
func (c *Collector) terminalRecord(o model.FlowObservation, window model.AttackWindow) model.LabeledRecord {
	fv := features.Compute(o.Identity, o.Snapshot, nil)
	v := c.labeler.Label(fv, o.Identity, o.Snapshot, window)
	return model.LabeledRecord{
		Topology: c.topology,
		Identity: o.Identity,
		Snapshot: o.Snapshot,
		Features: fv,
		Label:    v.Label,
		Rule:     v.Rule,
		Terminal: true,
	}
}

// flush emits every remaining store entry as a terminal record.
func (c *Collector) flush() {
	var records []model.LabeledRecord
	for _, o := range c.store.DrainAll() {
		records = append(records, c.terminalRecord(o, c.window))
	}
	if len(records) > 0 {
		logger.CollLog.Infof("Flushing %d live flows of topology %q", len(records), c.topology)
	}
	c.emit(records, 0, false)
}

func (c *Collector) emit(records []model.LabeledRecord, failures uint64, cycle bool) {
	c.mu.Lock()
	if cycle {
		c.stats.Cycles++
	}
	c.stats.LinkFailures += failures
	for _, r := range records {
		c.stats.Records++
		if r.Terminal {
			c.stats.Terminal++
		}
		if r.Label == 1 {
			c.stats.Positives++
		}
	}
	c.mu.Unlock()

	if len(records) == 0 {
		return
	}
	if err := c.out.Emit(records); err != nil {
		logger.CollLog.Errorf("Failed to emit %d records for topology %q: %v", len(records), c.topology, err)
	}
}
