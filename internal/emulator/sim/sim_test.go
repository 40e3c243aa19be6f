package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"
	"Go2FlowLabel/internal/topology"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLinear(t *testing.T) (*Network, *fakeClock, *model.TopologyHandle) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	net := New(WithClock(clock.Now))
	desc, err := topology.Build(config.TopologyDef{Name: "linear", Kind: "linear", NumSwitches: 2, HostsPerSwitch: 2})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	h, err := net.CreateTopology(context.Background(), desc)
	if err != nil {
		t.Fatalf("CreateTopology failed: %v", err)
	}
	return net, clock, h
}

func fetch(t *testing.T, net *Network, h *model.TopologyHandle, dpid uint64) []model.FlowObservation {
	t.Helper()
	links, err := net.Links(h)
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}
	for _, l := range links {
		if l.DatapathID() == dpid {
			obs, err := l.FetchFlows(context.Background())
			if err != nil {
				t.Fatalf("FetchFlows failed: %v", err)
			}
			return obs
		}
	}
	t.Fatalf("No link for dpid %d", dpid)
	return nil
}

func TestListHostsSorted(t *testing.T) {
	net, _, h := newLinear(t)
	hosts, err := net.ListHosts(context.Background(), h)
	if err != nil {
		t.Fatalf("ListHosts failed: %v", err)
	}
	if len(hosts) != 4 || hosts[0].Name != "h1" || hosts[3].Name != "h4" {
		t.Errorf("Unexpected hosts: %+v", hosts)
	}
}

func TestFlowTable_TableMissOnly(t *testing.T) {
	net, _, h := newLinear(t)
	obs := fetch(t, net, h, 1)
	if len(obs) != 1 || obs[0].Snapshot.Priority != 0 {
		t.Fatalf("Expected only the table-miss entry, got %+v", obs)
	}
}

func TestFlowTable_CountersGrow(t *testing.T) {
	net, clock, h := newLinear(t)
	ctx := context.Background()
	// h1 sits on s1, h3 on s2.
	p := model.TrafficProfile{Name: "udp_flood_h3", Kind: model.ProfileUDPFlood, Target: "h3"}
	if err := net.Start(ctx, "h1", p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	clock.Advance(2 * time.Second)
	first := fetch(t, net, h, 1)
	if len(first) != 2 {
		t.Fatalf("Expected table-miss plus one flow, got %d entries", len(first))
	}
	flow := first[1]
	if flow.Identity.Protocol != 17 || flow.Identity.DstPort != 53 || flow.Identity.SrcIP != "10.0.0.1" {
		t.Errorf("Unexpected identity: %+v", flow.Identity)
	}
	if flow.Snapshot.PacketCount != 36000 || flow.Snapshot.ByteCount != 36000*42 {
		t.Errorf("Unexpected counters: %+v", flow.Snapshot)
	}

	clock.Advance(5 * time.Second)
	second := fetch(t, net, h, 1)
	if second[1].Snapshot.PacketCount <= flow.Snapshot.PacketCount {
		t.Errorf("Counters must grow: %d then %d", flow.Snapshot.PacketCount, second[1].Snapshot.PacketCount)
	}

	// The egress switch sees the same flow under its own dpid.
	egress := fetch(t, net, h, 2)
	if len(egress) != 2 || egress[1].Identity.DatapathID != 2 {
		t.Errorf("Expected the flow on the egress switch, got %+v", egress)
	}
}

func TestFlowTable_HardTimeoutRestartsLifecycle(t *testing.T) {
	net, clock, h := newLinear(t)
	if err := net.Start(context.Background(), "h1", model.TrafficProfile{Name: "p", Kind: model.ProfileSYNFlood, Target: "h2"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(29 * time.Second)
	before := fetch(t, net, h, 1)[1].Snapshot.PacketCount
	clock.Advance(2 * time.Second)
	after := fetch(t, net, h, 1)[1].Snapshot
	if after.PacketCount >= before {
		t.Errorf("Counters should restart after the hard timeout: %d then %d", before, after.PacketCount)
	}
	if after.DurationSec != 1 {
		t.Errorf("Expected a fresh entry aged 1s, got %ds", after.DurationSec)
	}
}

func TestFlowTable_IdleTimeoutAfterStop(t *testing.T) {
	net, clock, h := newLinear(t)
	ctx := context.Background()
	if err := net.Start(ctx, "h1", model.TrafficProfile{Name: "p", Kind: model.ProfileICMPFlood, Target: "h2"}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(3 * time.Second)
	if err := net.Stop(ctx, "h1", "p"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	clock.Advance(5 * time.Second)
	obs := fetch(t, net, h, 1)
	if len(obs) != 2 || obs[1].Snapshot.PacketCount != 60000 {
		t.Fatalf("Stopped flow should keep its final counters until idle expiry, got %+v", obs)
	}
	clock.Advance(6 * time.Second)
	if obs := fetch(t, net, h, 1); len(obs) != 1 {
		t.Errorf("Expected the flow to be idle-expired, got %d entries", len(obs))
	}
}

func TestSwitchDownAndDestroy(t *testing.T) {
	net, _, h := newLinear(t)
	links, err := net.Links(h)
	if err != nil {
		t.Fatalf("Links failed: %v", err)
	}

	net.SetSwitchDown(1, true)
	if _, err := links[0].FetchFlows(context.Background()); !errors.Is(err, model.ErrLinkDown) {
		t.Errorf("Expected ErrLinkDown, got %v", err)
	}
	net.SetSwitchDown(1, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := links[0].FetchFlows(ctx); !errors.Is(err, model.ErrLinkTimeout) {
		t.Errorf("Expected ErrLinkTimeout on an expired context, got %v", err)
	}

	if err := net.DestroyTopology(context.Background(), h); err != nil {
		t.Fatalf("DestroyTopology failed: %v", err)
	}
	if _, err := links[1].FetchFlows(context.Background()); !errors.Is(err, model.ErrLinkDown) {
		t.Errorf("Expected ErrLinkDown after destroy, got %v", err)
	}
	if err := net.Start(context.Background(), "h1", model.TrafficProfile{Name: "p", Kind: model.ProfilePing, Target: "h2"}); err == nil {
		t.Error("Start on a destroyed topology should fail")
	}
}

func TestStart_Errors(t *testing.T) {
	net, _, _ := newLinear(t)
	ctx := context.Background()
	if err := net.Start(ctx, "h1", model.TrafficProfile{Name: "x", Kind: "smurf", Target: "h2"}); err == nil {
		t.Error("Expected an error for an unknown profile kind")
	}
	if err := net.Start(ctx, "h1", model.TrafficProfile{Name: "x", Kind: model.ProfilePing, Target: "h99"}); err == nil {
		t.Error("Expected an error for an unknown target")
	}
	if err := net.Stop(ctx, "h42", "x"); err != nil {
		t.Errorf("Stopping an unknown host should be a no-op, got %v", err)
	}
}

func TestSourcePort(t *testing.T) {
	if p := sourcePort(1, "h1", "ping"); p != 0 {
		t.Errorf("ICMP should carry no source port, got %d", p)
	}
	a, b := sourcePort(6, "h1", "iperf"), sourcePort(6, "h1", "iperf")
	if a != b || a < 32768 {
		t.Errorf("Source port should be stable and ephemeral, got %d and %d", a, b)
	}
}

func TestFlowTable_ProfileDurationEndsTraffic(t *testing.T) {
	net, clock, h := newLinear(t)
	p := model.TrafficProfile{Name: "iperf", Kind: model.ProfileIperf, Target: "h2", RateMbps: 12, Duration: 2 * time.Second}
	if err := net.Start(context.Background(), "h1", p); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	clock.Advance(5 * time.Second)
	obs := fetch(t, net, h, 1)
	// 12 Mbps of 1500-byte packets is 1000 pps, for 2s.
	if len(obs) != 2 || obs[1].Snapshot.PacketCount != 2000 {
		t.Fatalf("Traffic should stop after its duration, got %+v", obs)
	}
	clock.Advance(10 * time.Second)
	if obs := fetch(t, net, h, 1); len(obs) != 1 {
		t.Errorf("Expected the flow to be idle-expired after its duration, got %d entries", len(obs))
	}
}
