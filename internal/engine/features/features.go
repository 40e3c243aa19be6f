// Package features derives per-flow rate features from successive counter snapshots.
package features

import (
	"Go2FlowLabel/internal/model"

	"github.com/google/gopacket/layers"
)

// wellKnownPortLimit is the exclusive upper bound of the well-known port range.
const wellKnownPortLimit = 1024

// Compute derives the feature vector of cur, using prev (if any) as the rate baseline.
//
// Rates and FlowIAT are zero when there is no usable baseline: no previous snapshot,
// a non-positive interval, or a counter that went backwards because the entry was
// evicted and re-created between polls.
func Compute(id model.FlowIdentity, cur model.FlowSnapshot, prev *model.FlowSnapshot) model.FeatureVector {
	fv := model.FeatureVector{
		FlowDuration:    float64(cur.DurationSec) + float64(cur.DurationNsec)*1e-9,
		BytesPerPacket:  float64(cur.ByteCount) / float64(max(cur.PacketCount, 1)),
		IsTCP:           layers.IPProtocol(id.Protocol) == layers.IPProtocolTCP,
		IsUDP:           layers.IPProtocol(id.Protocol) == layers.IPProtocolUDP,
		IsICMP:          layers.IPProtocol(id.Protocol) == layers.IPProtocolICMPv4,
		IsWellKnownPort: id.SrcPort < wellKnownPortLimit || id.DstPort < wellKnownPortLimit,
	}

	if !HasBaseline(cur, prev) {
		return fv
	}

	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	fv.PacketRate = float64(cur.PacketCount-prev.PacketCount) / dt
	fv.ByteRate = float64(cur.ByteCount-prev.ByteCount) / dt
	fv.FlowIAT = dt
	return fv
}

// HasBaseline reports whether prev can serve as the rate baseline for cur.
func HasBaseline(cur model.FlowSnapshot, prev *model.FlowSnapshot) bool {
	if prev == nil {
		return false
	}
	if cur.Timestamp.Sub(prev.Timestamp) <= 0 {
		return false
	}
	return cur.PacketCount >= prev.PacketCount && cur.ByteCount >= prev.ByteCount
}

// ProtocolName returns a printable protocol name, e.g. "TCP".
func ProtocolName(proto uint8) string {
	return layers.IPProtocol(proto).String()
}
