package natspub

import (
	"testing"
	"time"

	"Go2FlowLabel/internal/model"
)

func TestMarshalUnmarshal(t *testing.T) {
	in := model.LabeledRecord{
		Topology: "datacenter",
		Identity: model.FlowIdentity{DatapathID: 9, SrcIP: "10.0.0.7", DstIP: "10.0.0.12", SrcPort: 51000, DstPort: 80, Protocol: 6},
		Snapshot: model.FlowSnapshot{
			Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 250000000, time.UTC),
			DurationSec: 12, DurationNsec: 7, IdleTimeout: 10, HardTimeout: 30, Priority: 1,
			PacketCount: 180000, ByteCount: 9720000,
		},
		Features: model.FeatureVector{PacketRate: 15000, ByteRate: 810000, BytesPerPacket: 54, FlowDuration: 12.000000007, FlowIAT: 5, IsTCP: true, IsWellKnownPort: true},
		Label:    1,
		Rule:     1,
		Terminal: true,
	}

	data, err := Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	out, raw, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw.GetFields()["flow_id"].GetStringValue() != "9_10.0.0.7_10.0.0.12_51000_80_6" {
		t.Errorf("Wire form should carry the flow id, got %v", raw.GetFields()["flow_id"])
	}
	if !out.Snapshot.Timestamp.Equal(in.Snapshot.Timestamp) {
		t.Errorf("Timestamp changed: %v", out.Snapshot.Timestamp)
	}
	out.Snapshot.Timestamp = in.Snapshot.Timestamp
	if out.Identity != in.Identity || out.Snapshot != in.Snapshot {
		t.Errorf("Identity or snapshot changed:\n got %+v\nwant %+v", out, in)
	}
	if out.Features != in.Features || out.Label != 1 || out.Rule != 1 || !out.Terminal || out.Topology != "datacenter" {
		t.Errorf("Record changed:\n got %+v\nwant %+v", out, in)
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	if _, _, err := Unmarshal([]byte{0xff, 0x01}); err == nil {
		t.Error("Expected an error for a malformed payload")
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("", "tree"); got != "flowlabel.records.tree" {
		t.Errorf("Unexpected subject: %s", got)
	}
	if got := Subject("lab", ""); got != "lab.*" {
		t.Errorf("Unexpected wildcard subject: %s", got)
	}
}
