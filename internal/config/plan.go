package config

import (
	"fmt"
	"math"
	"time"

	"Go2FlowLabel/internal/model"
)

// Scheduler defaults: 300s runs with attacks filling 70% of the runtime.
const (
	DefaultRuntime        = 300 * time.Second
	DefaultWarmup         = 30 * time.Second
	DefaultCooldown       = 10 * time.Second
	DefaultAttackShare    = 0.7
	DefaultAttackPhases   = 1
	DefaultAttackFraction = 0.2
	DefaultIperfFraction  = 0.3
	DefaultMaxVictims     = 2
	DefaultTrafficTimeout = 2 * time.Second
)

// PhasePlan is the resolved timing of one topology run:
// Warmup, then AttackPhases repetitions of (Steady, Attack), then Cooldown.
type PhasePlan struct {
	Runtime      time.Duration
	Warmup       time.Duration
	Steady       time.Duration
	Attack       time.Duration
	Cooldown     time.Duration
	AttackPhases int
}

// Plan resolves the scheduler block into phase durations. Any non-positive phase is
// reported as a *model.TimingViolationError.
func (s SchedulerConfig) Plan(topology string) (PhasePlan, error) {
	var p PhasePlan
	var err error
	if p.Runtime, err = Duration(s.Runtime, DefaultRuntime); err != nil {
		return p, err
	}
	if p.Warmup, err = Duration(s.Warmup, DefaultWarmup); err != nil {
		return p, err
	}
	if p.Cooldown, err = Duration(s.Cooldown, DefaultCooldown); err != nil {
		return p, err
	}

	share := s.AttackShare
	if share == 0 {
		share = DefaultAttackShare
	}
	p.AttackPhases = s.AttackPhases
	if p.AttackPhases == 0 {
		p.AttackPhases = DefaultAttackPhases
	}
	if p.AttackPhases < 0 {
		return p, &model.TimingViolationError{Topology: topology, Phase: "attack_phases", Duration: 0}
	}

	totalAttack := time.Duration(math.Round(float64(p.Runtime) * share))
	totalSteady := p.Runtime - p.Warmup - p.Cooldown - totalAttack
	p.Attack = totalAttack / time.Duration(p.AttackPhases)
	p.Steady = totalSteady / time.Duration(p.AttackPhases)

	checks := []struct {
		name string
		d    time.Duration
	}{
		{"runtime", p.Runtime},
		{"warmup", p.Warmup},
		{"steady", p.Steady},
		{"attacking", p.Attack},
		{"cooldown", p.Cooldown},
	}
	for _, c := range checks {
		if c.d <= 0 {
			return p, &model.TimingViolationError{Topology: topology, Phase: c.name, Duration: c.d}
		}
	}
	return p, nil
}

// AttackFractionOrDefault returns the share of hosts turned into attackers.
func (s SchedulerConfig) AttackFractionOrDefault() float64 {
	if s.AttackFraction == 0 {
		return DefaultAttackFraction
	}
	return s.AttackFraction
}

// IperfFractionOrDefault returns the share of hosts that also run iperf.
func (s SchedulerConfig) IperfFractionOrDefault() float64 {
	if s.IperfFraction == 0 {
		return DefaultIperfFraction
	}
	return s.IperfFraction
}

// MaxVictimsOrDefault returns the maximum number of flood targets.
func (s SchedulerConfig) MaxVictimsOrDefault() int {
	if s.MaxVictims == 0 {
		return DefaultMaxVictims
	}
	return s.MaxVictims
}

// TrafficTimeoutOrDefault returns the deadline of one batch of traffic commands.
func (s SchedulerConfig) TrafficTimeoutOrDefault() (time.Duration, error) {
	d, err := Duration(s.TrafficTimeout, DefaultTrafficTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("traffic_timeout must be positive, got %s", d)
	}
	return d, nil
}
