// Package labeler assigns the binary attack label to a flow from its rate features
// and the attack window in force.
package labeler

import (
	"fmt"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"
)

// Rule identifies which labeling rule produced a verdict.
const (
	RuleNone          = 0
	RuleHighRate      = 1
	RuleSmallPackets  = 2
	RuleSustained     = 3
	RuleAttackerSrcIP = 4
)

// Thresholds are the heuristic parameters of the labeling rules.
type Thresholds struct {
	PacketRate     float64 // rule 1
	RateSize       float64 // rule 2, packet rate
	Size           float64 // rule 2, bytes per packet
	SustainedRate  float64 // rule 3, packet rate
	SustainedCount uint64  // rule 3, packet count
}

// DefaultThresholds returns the thresholds used when the config leaves them unset.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PacketRate:     1000,
		RateSize:       500,
		Size:           100,
		SustainedRate:  300,
		SustainedCount: 5000,
	}
}

// Verdict is the outcome of labeling one observation.
type Verdict struct {
	Label uint8
	Rule  int
}

// Labeler is a stateless, read-only rule evaluator and is safe for concurrent use.
type Labeler struct {
	th Thresholds
}

// New creates a Labeler with the given thresholds.
func New(th Thresholds) *Labeler {
	return &Labeler{th: th}
}

// NewFromConfig builds a Labeler from the labeler config block.
// Zero values fall back to DefaultThresholds; negative values are rejected.
func NewFromConfig(cfg config.LabelerConfig) (*Labeler, error) {
	th := DefaultThresholds()
	set := func(name string, v float64, dst *float64) error {
		if v < 0 {
			return fmt.Errorf("labeler threshold %s must not be negative: %v", name, v)
		}
		if v > 0 {
			*dst = v
		}
		return nil
	}
	if err := set("packet_rate_threshold", cfg.PacketRateThreshold, &th.PacketRate); err != nil {
		return nil, err
	}
	if err := set("rate_size_threshold", cfg.RateSizeThreshold, &th.RateSize); err != nil {
		return nil, err
	}
	if err := set("size_threshold", cfg.SizeThreshold, &th.Size); err != nil {
		return nil, err
	}
	if err := set("sustained_rate_threshold", cfg.SustainedRateThreshold, &th.SustainedRate); err != nil {
		return nil, err
	}
	if cfg.SustainedCountThreshold > 0 {
		th.SustainedCount = cfg.SustainedCountThreshold
	}
	return New(th), nil
}

// Thresholds returns the thresholds in use.
func (l *Labeler) Thresholds() Thresholds {
	return l.th
}

// Label evaluates the rules in order; the first match wins.
func (l *Labeler) Label(fv model.FeatureVector, id model.FlowIdentity, cur model.FlowSnapshot, window model.AttackWindow) Verdict {
	switch {
	case fv.PacketRate > l.th.PacketRate:
		return Verdict{Label: 1, Rule: RuleHighRate}
	case fv.PacketRate > l.th.RateSize && fv.BytesPerPacket < l.th.Size:
		return Verdict{Label: 1, Rule: RuleSmallPackets}
	case fv.PacketRate > l.th.SustainedRate && cur.PacketCount > l.th.SustainedCount:
		return Verdict{Label: 1, Rule: RuleSustained}
	case window.Attacking() && window.IsAttacker(id.SrcIP):
		return Verdict{Label: 1, Rule: RuleAttackerSrcIP}
	}
	return Verdict{Label: 0, Rule: RuleNone}
}

// RuleName returns a short name for a rule id, used in summaries.
func RuleName(rule int) string {
	switch rule {
	case RuleHighRate:
		return "high_rate"
	case RuleSmallPackets:
		return "small_packets"
	case RuleSustained:
		return "sustained"
	case RuleAttackerSrcIP:
		return "attacker_src"
	}
	return "none"
}
