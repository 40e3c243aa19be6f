package model

import (
	"fmt"
	"time"
)

// FlowIdentity identifies a flow-table entry on a given switch.
// A flow-table entry may be evicted and re-created with the same identity,
// which starts a new counter lifecycle.
type FlowIdentity struct {
	DatapathID uint64
	SrcIP      string
	DstIP      string
	SrcPort    uint16
	DstPort    uint16
	Protocol   uint8
}

// Key renders the identity as "dpid_src_dst_sport_dport_proto".
func (id FlowIdentity) Key() string {
	return fmt.Sprintf("%d_%s_%s_%d_%d_%d", id.DatapathID, id.SrcIP, id.DstIP, id.SrcPort, id.DstPort, id.Protocol)
}

// FlowSnapshot is one poll's observation of a flow-table entry.
// PacketCount and ByteCount are non-decreasing within one lifecycle.
type FlowSnapshot struct {
	Timestamp    time.Time
	DurationSec  uint32
	DurationNsec uint32
	IdleTimeout  uint16
	HardTimeout  uint16
	Priority     uint16
	PacketCount  uint64
	ByteCount    uint64
}

// FlowObservation is a single entry of a switch flow-table reply.
type FlowObservation struct {
	Identity FlowIdentity
	Snapshot FlowSnapshot
}

// FeatureVector holds the features derived from one or two snapshots of a flow.
type FeatureVector struct {
	PacketRate      float64
	ByteRate        float64
	BytesPerPacket  float64
	FlowDuration    float64
	FlowIAT         float64
	IsTCP           bool
	IsUDP           bool
	IsICMP          bool
	IsWellKnownPort bool
}

// LabeledRecord is the terminal entity appended to a topology's output stream.
type LabeledRecord struct {
	Topology string
	Identity FlowIdentity
	Snapshot FlowSnapshot
	Features FeatureVector
	Label    uint8
	// Rule is the labeling rule that produced Label (0 when no rule matched).
	Rule int
	// Terminal marks the last record of a flow lifecycle, emitted on expiry or drain.
	Terminal bool
}
