package summary

import (
	"encoding/json"
	"math"
	"os"
	"testing"
	"time"

	"Go2FlowLabel/internal/engine/labeler"
	"Go2FlowLabel/internal/model"
)

func rec(label uint8, rule int, rate, iat float64, terminal bool) model.LabeledRecord {
	return model.LabeledRecord{
		Topology: "tree",
		Features: model.FeatureVector{PacketRate: rate, FlowIAT: iat},
		Label:    label,
		Rule:     rule,
		Terminal: terminal,
	}
}

func TestSummary(t *testing.T) {
	w := NewWriter(t.TempDir(), "tree", time.Now())
	batch := []model.LabeledRecord{
		rec(0, labeler.RuleNone, 2, 5, false),
		rec(0, labeler.RuleNone, 4, 5, false),
		rec(0, labeler.RuleNone, 0, 0, true), // first sample, no rate
		rec(1, labeler.RuleHighRate, 15000, 5, false),
		rec(1, labeler.RuleAttackerSrcIP, 0, 0, false),
	}
	if err := w.Write(batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatalf("Failed to read summary: %v", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Failed to decode summary: %v", err)
	}

	if s.Records != 5 || s.Classes["0"] != 3 || s.Classes["1"] != 2 || s.Terminal != 1 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if s.Rules["none"] != 3 || s.Rules["high_rate"] != 1 || s.Rules["attacker_src"] != 1 {
		t.Errorf("Unexpected rule counts: %v", s.Rules)
	}
	benign := s.PacketRates["0"]
	if benign.Samples != 2 || benign.Mean != 3 || math.Abs(benign.StdDev-math.Sqrt2) > 1e-9 {
		t.Errorf("Unexpected benign rates: %+v", benign)
	}
	if attack := s.PacketRates["1"]; attack.Samples != 1 || attack.Mean != 15000 || attack.StdDev != 0 {
		t.Errorf("Unexpected attack rates: %+v", attack)
	}
}

func TestSummary_EmptyStream(t *testing.T) {
	w := NewWriter(t.TempDir(), "mesh", time.Now())
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(w.Path()); err != nil {
		t.Errorf("Summary should exist for an empty stream: %v", err)
	}
}
