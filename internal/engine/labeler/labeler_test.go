package labeler

import (
	"testing"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"
)

var flow = model.FlowIdentity{DatapathID: 2, SrcIP: "10.0.0.4", DstIP: "10.0.0.7", SrcPort: 1234, DstPort: 80, Protocol: 6}

func attackingWindow(ips ...string) model.AttackWindow {
	set := make(map[string]string, len(ips))
	for i, ip := range ips {
		set[ip] = "h" + string(rune('1'+i))
	}
	now := time.Now()
	return model.NewAttackWindow("linear", model.PhaseAttacking, set, now, now.Add(time.Minute), 1)
}

func TestLabel_Rules(t *testing.T) {
	l := New(DefaultThresholds())
	idle := model.AttackWindow{}

	cases := []struct {
		name   string
		fv     model.FeatureVector
		count  uint64
		window model.AttackWindow
		want   Verdict
	}{
		{"high rate", model.FeatureVector{PacketRate: 1500, BytesPerPacket: 1000}, 10, idle, Verdict{1, RuleHighRate}},
		{"small packets", model.FeatureVector{PacketRate: 600, BytesPerPacket: 60}, 10, idle, Verdict{1, RuleSmallPackets}},
		{"moderate rate with large packets", model.FeatureVector{PacketRate: 600, BytesPerPacket: 1400}, 10, idle, Verdict{0, RuleNone}},
		{"sustained", model.FeatureVector{PacketRate: 400, BytesPerPacket: 1400}, 6000, idle, Verdict{1, RuleSustained}},
		{"sustained below count", model.FeatureVector{PacketRate: 400, BytesPerPacket: 1400}, 5000, idle, Verdict{0, RuleNone}},
		{"attacker during attack", model.FeatureVector{PacketRate: 1}, 1, attackingWindow("10.0.0.4"), Verdict{1, RuleAttackerSrcIP}},
		{"non-attacker during attack", model.FeatureVector{PacketRate: 1}, 1, attackingWindow("10.0.0.9"), Verdict{0, RuleNone}},
		{"benign", model.FeatureVector{PacketRate: 2, BytesPerPacket: 98}, 20, idle, Verdict{0, RuleNone}},
		// Thresholds are strict.
		{"exactly at threshold", model.FeatureVector{PacketRate: 1000, BytesPerPacket: 1400}, 10, idle, Verdict{0, RuleNone}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := l.Label(c.fv, flow, model.FlowSnapshot{PacketCount: c.count}, c.window)
			if got != c.want {
				t.Errorf("got %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestLabel_IdleWindowIgnoresAttackerSet(t *testing.T) {
	l := New(DefaultThresholds())
	now := time.Now()
	w := model.NewAttackWindow("linear", model.PhaseIdle, map[string]string{"10.0.0.4": "h4"}, now, now, 2)
	if got := l.Label(model.FeatureVector{PacketRate: 1}, flow, model.FlowSnapshot{}, w); got.Label != 0 {
		t.Errorf("An idle window must not label attacker traffic, got %+v", got)
	}
}

func TestLabel_MonotonicInPacketRate(t *testing.T) {
	l := New(DefaultThresholds())
	idle := model.AttackWindow{}
	for _, bpp := range []float64{40, 100, 1500} {
		for _, count := range []uint64{0, 5001, 100000} {
			prev := uint8(0)
			for rate := 0.0; rate <= 3000; rate += 25 {
				got := l.Label(model.FeatureVector{PacketRate: rate, BytesPerPacket: bpp}, flow, model.FlowSnapshot{PacketCount: count}, idle).Label
				if got < prev {
					t.Fatalf("label dropped from %d to %d at rate %v (bpp=%v count=%d)", prev, got, rate, bpp, count)
				}
				prev = got
			}
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	l, err := NewFromConfig(config.LabelerConfig{PacketRateThreshold: 2000, SustainedCountThreshold: 100})
	if err != nil {
		t.Fatalf("NewFromConfig failed: %v", err)
	}
	th := l.Thresholds()
	if th.PacketRate != 2000 || th.SustainedCount != 100 {
		t.Errorf("Overrides not applied: %+v", th)
	}
	if th.RateSize != 500 || th.Size != 100 || th.SustainedRate != 300 {
		t.Errorf("Defaults not applied: %+v", th)
	}

	if _, err := NewFromConfig(config.LabelerConfig{SizeThreshold: -5}); err == nil {
		t.Errorf("Expected an error for a negative threshold")
	}
}
