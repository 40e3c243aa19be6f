package clickhouse

import (
	"strings"
	"testing"
	"time"

	"Go2FlowLabel/internal/model"
)

func TestRowValuesMatchSchema(t *testing.T) {
	start := strings.Index(createTableStatement, "(")
	end := strings.Index(createTableStatement, ") ENGINE")
	var columns int
	for _, line := range strings.Split(createTableStatement[start+1:end], "\n") {
		if strings.TrimSpace(line) != "" {
			columns++
		}
	}

	r := model.LabeledRecord{
		Topology: "tree",
		Identity: model.FlowIdentity{DatapathID: 2, SrcIP: "10.0.0.3", DstIP: "10.0.0.9", SrcPort: 40001, DstPort: 80, Protocol: 6},
		Snapshot: model.FlowSnapshot{Timestamp: time.Unix(1714564800, 0), PacketCount: 100},
		Features: model.FeatureVector{IsTCP: true, IsWellKnownPort: true},
		Label:    1,
		Rule:     4,
		Terminal: true,
	}
	values := rowValues(&r)
	if len(values) != columns {
		t.Fatalf("Row has %d values for %d columns", len(values), columns)
	}
	if values[3] != "2_10.0.0.3_10.0.0.9_40001_80_6" {
		t.Errorf("Unexpected flow id: %v", values[3])
	}
	if values[21] != uint8(1) || values[22] != uint8(0) {
		t.Errorf("Protocol flags should be UInt8: %v %v", values[21], values[22])
	}
	if values[26] != uint8(4) || values[27] != uint8(1) {
		t.Errorf("Unexpected rule/terminal: %v %v", values[26], values[27])
	}
}
