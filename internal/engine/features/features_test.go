package features

import (
	"math"
	"testing"
	"time"

	"Go2FlowLabel/internal/model"
)

var (
	base    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	udpFlow = model.FlowIdentity{DatapathID: 1, SrcIP: "10.0.0.1", DstIP: "10.0.0.2", SrcPort: 40000, DstPort: 53, Protocol: 17}
)

func snap(at time.Duration, packets, bytes uint64) model.FlowSnapshot {
	return model.FlowSnapshot{
		Timestamp:    base.Add(at),
		DurationSec:  uint32(at / time.Second),
		DurationNsec: 500000000,
		PacketCount:  packets,
		ByteCount:    bytes,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCompute_Rates(t *testing.T) {
	prev := snap(0, 100, 10000)
	cur := snap(5*time.Second, 600, 60000)

	fv := Compute(udpFlow, cur, &prev)
	if !almostEqual(fv.PacketRate, 100) {
		t.Errorf("Expected packet rate 100, got %v", fv.PacketRate)
	}
	if !almostEqual(fv.ByteRate, 10000) {
		t.Errorf("Expected byte rate 10000, got %v", fv.ByteRate)
	}
	if !almostEqual(fv.FlowIAT, 5) {
		t.Errorf("Expected IAT 5, got %v", fv.FlowIAT)
	}
	if !almostEqual(fv.BytesPerPacket, 100) {
		t.Errorf("Expected 100 bytes per packet, got %v", fv.BytesPerPacket)
	}
	if !almostEqual(fv.FlowDuration, 5.5) {
		t.Errorf("Expected duration 5.5, got %v", fv.FlowDuration)
	}
	if !fv.IsUDP || fv.IsTCP || fv.IsICMP {
		t.Errorf("Unexpected protocol flags: %+v", fv)
	}
	if !fv.IsWellKnownPort {
		t.Errorf("Destination port 53 should be well known")
	}
}

func TestCompute_FirstSample(t *testing.T) {
	cur := snap(5*time.Second, 600, 60000)
	fv := Compute(udpFlow, cur, nil)
	if fv.PacketRate != 0 || fv.ByteRate != 0 || fv.FlowIAT != 0 {
		t.Errorf("Expected zero rates on first sample, got %+v", fv)
	}
	if !almostEqual(fv.BytesPerPacket, 100) {
		t.Errorf("BytesPerPacket should not depend on the baseline, got %v", fv.BytesPerPacket)
	}
}

func TestCompute_NonPositiveInterval(t *testing.T) {
	prev := snap(5*time.Second, 100, 1000)
	cur := snap(5*time.Second, 200, 2000)
	if fv := Compute(udpFlow, cur, &prev); fv.PacketRate != 0 || fv.FlowIAT != 0 {
		t.Errorf("Expected zero rates for dt == 0, got %+v", fv)
	}

	earlier := snap(time.Second, 300, 3000)
	if fv := Compute(udpFlow, earlier, &prev); fv.PacketRate != 0 {
		t.Errorf("Expected zero rates for dt < 0, got %+v", fv)
	}
}

func TestCompute_CounterReset(t *testing.T) {
	// The entry was evicted and re-created between polls.
	prev := snap(0, 5000, 500000)
	cur := snap(5*time.Second, 20, 2000)
	fv := Compute(udpFlow, cur, &prev)
	if fv.PacketRate != 0 || fv.ByteRate != 0 || fv.FlowIAT != 0 {
		t.Errorf("Expected first-sample features after a reset, got %+v", fv)
	}
	if fv.PacketRate < 0 || fv.ByteRate < 0 {
		t.Errorf("Rates must never be negative")
	}
}

func TestCompute_ZeroPackets(t *testing.T) {
	cur := snap(time.Second, 0, 0)
	if fv := Compute(udpFlow, cur, nil); fv.BytesPerPacket != 0 {
		t.Errorf("Expected 0 bytes per packet, got %v", fv.BytesPerPacket)
	}
}

func TestCompute_ProtocolFlags(t *testing.T) {
	cases := []struct {
		proto          uint8
		tcp, udp, icmp bool
	}{
		{1, false, false, true},
		{6, true, false, false},
		{17, false, true, false},
		{47, false, false, false},
	}
	for _, c := range cases {
		id := udpFlow
		id.Protocol = c.proto
		fv := Compute(id, snap(time.Second, 1, 1), nil)
		if fv.IsTCP != c.tcp || fv.IsUDP != c.udp || fv.IsICMP != c.icmp {
			t.Errorf("proto %d: got tcp=%v udp=%v icmp=%v", c.proto, fv.IsTCP, fv.IsUDP, fv.IsICMP)
		}
	}
}

func TestCompute_WellKnownPort(t *testing.T) {
	id := udpFlow
	id.SrcPort, id.DstPort = 40000, 50000
	if Compute(id, snap(time.Second, 1, 1), nil).IsWellKnownPort {
		t.Errorf("Ports 40000/50000 should not be well known")
	}
	id.SrcPort = 1023
	if !Compute(id, snap(time.Second, 1, 1), nil).IsWellKnownPort {
		t.Errorf("Source port 1023 should be well known")
	}
}

func TestCompute_Deterministic(t *testing.T) {
	prev := snap(0, 10, 1000)
	cur := snap(3*time.Second, 70, 7000)
	if Compute(udpFlow, cur, &prev) != Compute(udpFlow, cur, &prev) {
		t.Errorf("Compute must be deterministic")
	}
}
