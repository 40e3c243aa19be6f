package model

import (
	"sort"
	"time"
)

// Phase is the attack state announced by an AttackWindow.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseAttacking Phase = "attacking"
)

// AttackWindow is an immutable snapshot of the scheduler's attack state.
// The zero value is an idle window with no attackers.
type AttackWindow struct {
	TopologyID string
	Phase      Phase
	Start      time.Time
	End        time.Time
	Version    uint64

	// attackers maps host IP to host name.
	attackers map[string]string
}

// NewAttackWindow builds a window, copying the attacker set (IP -> host name).
func NewAttackWindow(topology string, phase Phase, attackers map[string]string, start, end time.Time, version uint64) AttackWindow {
	copied := make(map[string]string, len(attackers))
	for ip, name := range attackers {
		copied[ip] = name
	}
	return AttackWindow{
		TopologyID: topology,
		Phase:      phase,
		Start:      start,
		End:        end,
		Version:    version,
		attackers:  copied,
	}
}

// IsAttacker reports whether ip belongs to the attacker set.
func (w AttackWindow) IsAttacker(ip string) bool {
	_, ok := w.attackers[ip]
	return ok
}

// Attacking reports whether the window announces an active attack phase.
func (w AttackWindow) Attacking() bool {
	return w.Phase == PhaseAttacking
}

// AttackerIPs returns the attacker IPs in sorted order.
func (w AttackWindow) AttackerIPs() []string {
	ips := make([]string, 0, len(w.attackers))
	for ip := range w.attackers {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// AttackerNames returns the attacker host names in sorted order.
func (w AttackWindow) AttackerNames() []string {
	names := make([]string, 0, len(w.attackers))
	for _, name := range w.attackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
