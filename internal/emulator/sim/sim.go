// Package sim is an in-process network emulator. It instantiates topologies in
// memory, runs traffic profiles as counter models and serves OpenFlow-like flow
// tables, so a full run can be exercised without Mininet or a controller.
package sim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/topology"
)

// Flow entry timeouts and priority installed by the simulated controller.
const (
	IdleTimeout  = 10 * time.Second
	HardTimeout  = 30 * time.Second
	FlowPriority = 1
)

// Option configures a Network.
type Option func(*Network)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Network) { n.now = now }
}

// Network is a simulated emulator. It implements model.Emulator,
// model.LinkProvider and model.TrafficGenerator.
type Network struct {
	mu        sync.Mutex
	now       func() time.Time
	seq       uint64
	instances map[string]*instance
	down      map[uint64]bool
}

type instance struct {
	handle  model.TopologyHandle
	hosts   map[string]model.Host
	dpids   map[string]uint64 // switch name -> dpid
	sources map[string]*source
}

type source struct {
	host    model.Host
	target  model.Host
	profile model.TrafficProfile
	model   rateModel
	sport   uint16
	started time.Time
	stopped time.Time
}

// New creates an empty simulated network.
func New(opts ...Option) *Network {
	n := &Network{
		now:       time.Now,
		instances: make(map[string]*instance),
		down:      make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// CreateTopology instantiates desc and returns its handle.
func (n *Network) CreateTopology(ctx context.Context, desc model.TopologyDesc) (*model.TopologyHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := topology.Validate(desc); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	inst := &instance{
		handle:  model.TopologyHandle{ID: fmt.Sprintf("%s-%d", desc.Name, n.seq), Desc: desc},
		hosts:   make(map[string]model.Host, len(desc.Hosts)),
		dpids:   make(map[string]uint64, len(desc.Switches)),
		sources: make(map[string]*source),
	}
	for _, h := range desc.Hosts {
		inst.hosts[h.Name] = h
	}
	for _, s := range desc.Switches {
		inst.dpids[s.Name] = s.DatapathID
	}
	n.instances[inst.handle.ID] = inst
	logger.EmuLog.Infof("Simulated topology %s up: %d switches, %d hosts", inst.handle.ID, len(desc.Switches), len(desc.Hosts))

	h := inst.handle
	return &h, nil
}

// DestroyTopology tears the topology down; its switches stop answering.
func (n *Network) DestroyTopology(_ context.Context, handle *model.TopologyHandle) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.instances[handle.ID]; !ok {
		return fmt.Errorf("unknown topology handle %q", handle.ID)
	}
	delete(n.instances, handle.ID)
	logger.EmuLog.Infof("Simulated topology %s destroyed", handle.ID)
	return nil
}

// ListHosts returns the hosts of a topology, sorted by name.
func (n *Network) ListHosts(_ context.Context, handle *model.TopologyHandle) ([]model.Host, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	inst, ok := n.instances[handle.ID]
	if !ok {
		return nil, fmt.Errorf("unknown topology handle %q", handle.ID)
	}
	hosts := make([]model.Host, 0, len(inst.hosts))
	for _, h := range inst.hosts {
		hosts = append(hosts, h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts, nil
}

// Links returns one switch link per switch of the topology.
func (n *Network) Links(handle *model.TopologyHandle) ([]model.SwitchLink, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.instances[handle.ID]; !ok {
		return nil, fmt.Errorf("unknown topology handle %q", handle.ID)
	}
	links := make([]model.SwitchLink, 0, len(handle.Desc.Switches))
	for _, s := range handle.Desc.Switches {
		links = append(links, &switchLink{net: n, topo: handle.ID, dpid: s.DatapathID})
	}
	return links, nil
}

// SetSwitchDown makes a switch refuse flow-stats requests, for failure drills.
func (n *Network) SetSwitchDown(dpid uint64, down bool) {
	n.mu.Lock()
	n.down[dpid] = down
	n.mu.Unlock()
}

// findHost locates the running instance that owns host.
func (n *Network) findHost(host string) (*instance, model.Host, bool) {
	for _, inst := range n.instances {
		if h, ok := inst.hosts[host]; ok {
			return inst, h, true
		}
	}
	return nil, model.Host{}, false
}

// Start launches a traffic profile on host.
func (n *Network) Start(ctx context.Context, host string, p model.TrafficProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rm, ok := modelFor(p)
	if !ok {
		return fmt.Errorf("unknown traffic profile kind %q", p.Kind)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	inst, h, ok := n.findHost(host)
	if !ok {
		return fmt.Errorf("unknown host %q", host)
	}
	target, ok := inst.hosts[p.Target]
	if !ok {
		return fmt.Errorf("unknown target host %q", p.Target)
	}
	inst.sources[host+"/"+p.Name] = &source{
		host:    h,
		target:  target,
		profile: p,
		model:   rm,
		sport:   sourcePort(rm.proto, host, p.Name),
		started: n.now(),
	}
	return nil
}

// Stop stops a running traffic profile. Stopping an unknown profile is not an error.
func (n *Network) Stop(_ context.Context, host string, profile string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	inst, _, ok := n.findHost(host)
	if !ok {
		return nil
	}
	if src, ok := inst.sources[host+"/"+profile]; ok && src.stopped.IsZero() {
		src.stopped = n.now()
	}
	return nil
}

// flowTable renders the table of one switch at the current time.
func (n *Network) flowTable(topoID string, dpid uint64) ([]model.FlowObservation, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down[dpid] {
		return nil, fmt.Errorf("switch %d: %w", dpid, model.ErrLinkDown)
	}
	inst, ok := n.instances[topoID]
	if !ok {
		return nil, fmt.Errorf("topology %s is gone: %w", topoID, model.ErrLinkDown)
	}

	now := n.now()
	table := []model.FlowObservation{{
		// Table-miss entry sending unmatched packets to the controller.
		Identity: model.FlowIdentity{DatapathID: dpid},
		Snapshot: model.FlowSnapshot{Timestamp: now, Priority: 0},
	}}

	for _, src := range inst.sources {
		if inst.dpids[src.host.Switch] != dpid && inst.dpids[src.target.Switch] != dpid {
			continue
		}
		snap, live := src.entry(now)
		if !live {
			continue
		}
		table = append(table, model.FlowObservation{
			Identity: model.FlowIdentity{
				DatapathID: dpid,
				SrcIP:      src.host.IP,
				DstIP:      src.target.IP,
				SrcPort:    src.sport,
				DstPort:    src.model.dstPort,
				Protocol:   uint8(src.model.proto),
			},
			Snapshot: snap,
		})
	}
	return table, nil
}

// stopTime is when traffic ended: an explicit Stop, or the profile duration
// running out. Zero while traffic is still flowing at now.
func (s *source) stopTime(now time.Time) time.Time {
	stop := s.stopped
	if d := s.profile.Duration; d > 0 {
		if expiry := s.started.Add(d); stop.IsZero() || expiry.Before(stop) {
			stop = expiry
		}
	}
	if stop.After(now) {
		return time.Time{}
	}
	return stop
}

// entry computes the flow entry counters of a source at now. The entry is
// re-installed every HardTimeout while traffic runs, and disappears once traffic
// has been stopped for IdleTimeout.
func (s *source) entry(now time.Time) (model.FlowSnapshot, bool) {
	end := now
	if stopped := s.stopTime(now); !stopped.IsZero() {
		if now.Sub(stopped) >= IdleTimeout {
			return model.FlowSnapshot{}, false
		}
		end = stopped
	}
	elapsed := now.Sub(s.started)
	if elapsed < 0 {
		return model.FlowSnapshot{}, false
	}

	installed := s.started.Add(elapsed / HardTimeout * HardTimeout)
	if installed.After(end) {
		// Re-installation needs a packet; none has arrived since traffic stopped.
		return model.FlowSnapshot{}, false
	}
	active := end.Sub(installed).Seconds()
	packets := uint64(active * s.model.pps)
	age := now.Sub(installed)

	return model.FlowSnapshot{
		Timestamp:    now,
		DurationSec:  uint32(age / time.Second),
		DurationNsec: uint32(age % time.Second),
		IdleTimeout:  uint16(IdleTimeout / time.Second),
		HardTimeout:  uint16(HardTimeout / time.Second),
		Priority:     FlowPriority,
		PacketCount:  packets,
		ByteCount:    packets * s.model.size,
	}, true
}

type switchLink struct {
	net  *Network
	topo string
	dpid uint64
}

func (l *switchLink) DatapathID() uint64 { return l.dpid }

func (l *switchLink) FetchFlows(ctx context.Context) ([]model.FlowObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("switch %d: %w", l.dpid, model.ErrLinkTimeout)
	}
	return l.net.flowTable(l.topo, l.dpid)
}
