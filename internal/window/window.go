// Package window renders attack windows for outside consumers and mirrors the
// current window into redis.
package window

import (
	"time"

	"Go2FlowLabel/internal/model"
)

// View is the JSON form of an AttackWindow.
type View struct {
	Topology      string    `json:"topology"`
	Phase         string    `json:"phase"`
	Attackers     []string  `json:"attackers"`
	AttackerHosts []string  `json:"attacker_hosts"`
	Start         time.Time `json:"start,omitempty"`
	End           time.Time `json:"end,omitempty"`
	Version       uint64    `json:"version"`
}

// ViewOf converts a window to its JSON form.
func ViewOf(w model.AttackWindow) View {
	phase := w.Phase
	if phase == "" {
		phase = model.PhaseIdle
	}
	return View{
		Topology:      w.TopologyID,
		Phase:         string(phase),
		Attackers:     w.AttackerIPs(),
		AttackerHosts: w.AttackerNames(),
		Start:         w.Start,
		End:           w.End,
		Version:       w.Version,
	}
}
