// Package scheduler drives one topology run through its traffic phases and
// announces attack windows to the collector.
package scheduler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/looplab/fsm"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat/sampleuv"
)

const (
	pingInterval  = 500 * time.Millisecond
	iperfRateMbps = 10
	synFloodPort  = 80
	udpFloodPort  = 53
	defaultBuffer = 4
	profilePing   = "ping"
	profileIperf  = "iperf"
)

// floodKinds are launched from every attacker against every victim.
var floodKinds = []string{model.ProfileICMPFlood, model.ProfileSYNFlood, model.ProfileUDPFlood}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithObservers registers observers notified of every published window.
func WithObservers(obs ...model.WindowObserver) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, obs...) }
}

// WithWindowBuffer sets the capacity of the window channel.
func WithWindowBuffer(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.windows = make(chan model.AttackWindow, n)
		}
	}
}

// Scheduler is the single writer of a topology's AttackWindow.
type Scheduler struct {
	topology string
	plan     config.PhasePlan
	hosts    []model.Host
	traffic  model.TrafficGenerator

	attackFraction float64
	iperfFraction  float64
	maxVictims     int
	trafficTimeout time.Duration
	fixed          []int // indexes into hosts, when attackers are configured by name

	rng *rand.Rand
	src rand.Source

	windows   chan model.AttackWindow
	observers []model.WindowObserver
	fsm       *fsm.FSM

	mu      sync.Mutex
	version uint64
	current model.AttackWindow
	// active maps host name to the traffic profiles running on it.
	active map[string][]string
}

// New creates a scheduler for one topology. index is the topology's position in
// the sequence and, with the configured seed, determines every random choice.
func New(topology string, index int, cfg config.SchedulerConfig, hosts []model.Host, traffic model.TrafficGenerator, opts ...Option) (*Scheduler, error) {
	plan, err := cfg.Plan(topology)
	if err != nil {
		return nil, err
	}
	trafficTimeout, err := cfg.TrafficTimeoutOrDefault()
	if err != nil {
		return nil, fmt.Errorf("topology %q: %w", topology, err)
	}
	if len(hosts) < 2 {
		return nil, fmt.Errorf("topology %q needs at least 2 hosts, has %d", topology, len(hosts))
	}

	sorted := slices.Clone(hosts)
	slices.SortFunc(sorted, func(a, b model.Host) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})

	src := rand.NewPCG(cfg.Seed, uint64(index))
	s := &Scheduler{
		topology:       topology,
		plan:           plan,
		hosts:          sorted,
		traffic:        traffic,
		attackFraction: cfg.AttackFractionOrDefault(),
		iperfFraction:  cfg.IperfFractionOrDefault(),
		maxVictims:     cfg.MaxVictimsOrDefault(),
		trafficTimeout: trafficTimeout,
		src:            src,
		rng:            rand.New(src),
		windows:        make(chan model.AttackWindow, defaultBuffer),
		fsm:            newSchedulerFSM(topology),
		active:         make(map[string][]string),
		current:        model.NewAttackWindow(topology, model.PhaseIdle, nil, time.Time{}, time.Time{}, 0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(cfg.Attackers) > 0 {
		for _, name := range cfg.Attackers {
			i := slices.IndexFunc(s.hosts, func(h model.Host) bool { return h.Name == name })
			if i < 0 {
				return nil, fmt.Errorf("topology %q: configured attacker %q is not a host", topology, name)
			}
			s.fixed = append(s.fixed, i)
		}
		if len(s.fixed) >= len(s.hosts) {
			return nil, fmt.Errorf("topology %q: attackers must leave at least one victim", topology)
		}
	}
	return s, nil
}

// Windows returns the channel on which attack windows are published.
// When the buffer is full the oldest pending window is dropped.
func (s *Scheduler) Windows() <-chan model.AttackWindow {
	return s.windows
}

// Plan returns the resolved phase durations.
func (s *Scheduler) Plan() config.PhasePlan {
	return s.plan
}

// State returns the current phase.
func (s *Scheduler) State() string {
	return s.fsm.Current()
}

// Current returns the last published window.
func (s *Scheduler) Current() model.AttackWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Run executes Warmup, the steady/attack cycles and CoolDown. On cancellation all
// traffic is stopped, an idle window is published and ctx.Err() is returned.
// Every batch of traffic commands is bounded by the traffic timeout, so an
// unreachable generator delays a phase change but never blocks it.
func (s *Scheduler) Run(ctx context.Context) error {
	// Transitions and cleanup use a detached context so cancellation cannot wedge them.
	// Traffic calls on it still get their own deadline.
	bg := context.WithoutCancel(ctx)
	if err := s.event(bg, BeginEvent); err != nil {
		return err
	}
	logger.SchedLog.Infof("Topology %q: warmup %s, %d x (steady %s, attack %s), cooldown %s",
		s.topology, s.plan.Warmup, s.plan.AttackPhases, s.plan.Steady, s.plan.Attack, s.plan.Cooldown)

	s.startBackground(ctx)
	if err := sleep(ctx, s.plan.Warmup); err != nil {
		return s.abort(bg, err)
	}

	for phase := 0; phase < s.plan.AttackPhases; phase++ {
		if err := s.event(bg, SteadyEvent); err != nil {
			return err
		}
		if err := sleep(ctx, s.plan.Steady); err != nil {
			return s.abort(bg, err)
		}

		if err := s.event(bg, AttackEvent); err != nil {
			return err
		}
		attackers, victims := s.pickRoles()
		s.beginAttack(ctx, attackers, victims)
		err := sleep(ctx, s.plan.Attack)
		s.endAttack(bg)
		if err != nil {
			return s.abort(bg, err)
		}

		if phase < s.plan.AttackPhases-1 {
			continue
		}
		if err := s.event(bg, CoolDownEvent); err != nil {
			return err
		}
	}

	if err := sleep(ctx, s.plan.Cooldown); err != nil {
		return s.abort(bg, err)
	}
	s.stopAll(bg)
	return s.event(bg, FinishEvent)
}

func (s *Scheduler) event(ctx context.Context, name string) error {
	if err := s.fsm.Event(ctx, name); err != nil {
		return fmt.Errorf("failed to apply scheduler event %s in state %s: %w", name, s.fsm.Current(), err)
	}
	return nil
}

func (s *Scheduler) abort(ctx context.Context, cause error) error {
	logger.SchedLog.Warnf("Topology %q: scheduler interrupted in %s: %v", s.topology, s.fsm.Current(), cause)
	s.stopAll(ctx)
	s.publish(ctx, model.PhaseIdle, nil, 0)
	if err := s.fsm.Event(ctx, AbortEvent); err != nil {
		logger.SchedLog.Errorf("Topology %q: failed to abort: %v", s.topology, err)
	}
	return cause
}

// startBackground launches ping on every host and iperf on a share of them.
// iperf runs for half of the run.
func (s *Scheduler) startBackground(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.trafficTimeout)
	defer cancel()

	n := len(s.hosts)
	iperfCount := int(float64(n) * s.iperfFraction)
	iperf := make(map[int]bool, iperfCount)
	if iperfCount > 0 {
		idxs := make([]int, iperfCount)
		sampleuv.WithoutReplacement(idxs, n, s.src)
		for _, i := range idxs {
			iperf[i] = true
		}
	}

	for i, h := range s.hosts {
		peer := s.randomPeer(i)
		s.launch(ctx, h.Name, model.TrafficProfile{
			Name:     profilePing,
			Kind:     model.ProfilePing,
			Target:   peer.Name,
			TargetIP: peer.IP,
			Interval: pingInterval,
			Duration: s.plan.Runtime,
		})
		if iperf[i] {
			peer = s.randomPeer(i)
			s.launch(ctx, h.Name, model.TrafficProfile{
				Name:     profileIperf,
				Kind:     model.ProfileIperf,
				Target:   peer.Name,
				TargetIP: peer.IP,
				RateMbps: iperfRateMbps,
				Duration: s.plan.Runtime / 2,
			})
		}
	}
	logger.SchedLog.Infof("Topology %q: background traffic on %d hosts (%d with iperf)", s.topology, n, iperfCount)
}

func (s *Scheduler) randomPeer(self int) model.Host {
	j := s.rng.IntN(len(s.hosts) - 1)
	if j >= self {
		j++
	}
	return s.hosts[j]
}

// pickRoles returns the attacker and victim hosts for the next attack phase.
func (s *Scheduler) pickRoles() (attackers, victims []model.Host) {
	n := len(s.hosts)
	var attackIdx []int
	if len(s.fixed) > 0 {
		attackIdx = slices.Clone(s.fixed)
	} else {
		count := int(float64(n) * s.attackFraction)
		count = max(count, 1)
		count = min(count, n-1)
		attackIdx = make([]int, count)
		sampleuv.WithoutReplacement(attackIdx, n, s.src)
	}

	var others []int
	for i := range s.hosts {
		if !slices.Contains(attackIdx, i) {
			others = append(others, i)
		}
	}
	victimCount := min(s.maxVictims, len(others))
	pick := make([]int, victimCount)
	if victimCount > 0 {
		sampleuv.WithoutReplacement(pick, len(others), s.src)
	}

	slices.Sort(attackIdx)
	slices.Sort(pick)
	for _, i := range attackIdx {
		attackers = append(attackers, s.hosts[i])
	}
	for _, p := range pick {
		victims = append(victims, s.hosts[others[p]])
	}
	return attackers, victims
}

// beginAttack publishes the attacking window first, then launches the floods.
// Launches stop as soon as ctx is cancelled.
func (s *Scheduler) beginAttack(ctx context.Context, attackers, victims []model.Host) {
	set := make(map[string]string, len(attackers))
	names := make([]string, 0, len(attackers))
	for _, a := range attackers {
		set[a.IP] = a.Name
		names = append(names, a.Name)
	}
	s.publish(context.WithoutCancel(ctx), model.PhaseAttacking, set, s.plan.Attack)

	ctx, cancel := context.WithTimeout(ctx, s.trafficTimeout)
	defer cancel()

	victimNames := make([]string, 0, len(victims))
	for _, v := range victims {
		victimNames = append(victimNames, v.Name)
	}
	logger.SchedLog.Infof("Topology %q: attack from %v against %v", s.topology, names, victimNames)

	for _, a := range attackers {
		for _, v := range victims {
			for _, kind := range floodKinds {
				p := model.TrafficProfile{
					Name:     kind + "_" + v.Name,
					Kind:     kind,
					Target:   v.Name,
					TargetIP: v.IP,
					Duration: s.plan.Attack,
				}
				switch kind {
				case model.ProfileSYNFlood:
					p.Port = synFloodPort
				case model.ProfileUDPFlood:
					p.Port = udpFloodPort
				}
				s.launch(ctx, a.Name, p)
			}
		}
	}
}

// endAttack stops the floods, then publishes the idle window.
func (s *Scheduler) endAttack(ctx context.Context) {
	s.stopMatching(ctx, func(profile string) bool {
		return profile != profilePing && profile != profileIperf
	})
	s.publish(ctx, model.PhaseIdle, nil, 0)
}

func (s *Scheduler) launch(ctx context.Context, host string, p model.TrafficProfile) {
	if err := s.traffic.Start(ctx, host, p); err != nil {
		logger.SchedLog.Warnf("Topology %q: failed to start %s on %s: %v", s.topology, p.Name, host, err)
		return
	}
	s.mu.Lock()
	s.active[host] = append(s.active[host], p.Name)
	s.mu.Unlock()
}

func (s *Scheduler) stopAll(ctx context.Context) {
	s.stopMatching(ctx, func(string) bool { return true })
}

// stopMatching stops the matching profiles; the whole batch shares one traffic timeout.
func (s *Scheduler) stopMatching(ctx context.Context, match func(profile string) bool) {
	s.mu.Lock()
	hosts := make([]string, 0, len(s.active))
	for h := range s.active {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)
	type job struct{ host, profile string }
	var jobs []job
	for _, h := range hosts {
		var keep []string
		for _, p := range s.active[h] {
			if match(p) {
				jobs = append(jobs, job{h, p})
			} else {
				keep = append(keep, p)
			}
		}
		if len(keep) == 0 {
			delete(s.active, h)
		} else {
			s.active[h] = keep
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.trafficTimeout)
	defer cancel()
	for _, j := range jobs {
		if err := s.traffic.Stop(ctx, j.host, j.profile); err != nil {
			logger.SchedLog.Warnf("Topology %q: failed to stop %s on %s: %v", s.topology, j.profile, j.host, err)
		}
	}
}

// publish sends a new window version to the collector and the observers.
func (s *Scheduler) publish(ctx context.Context, phase model.Phase, attackers map[string]string, length time.Duration) {
	now := time.Now()
	var end time.Time
	if length > 0 {
		end = now.Add(length)
	}

	s.mu.Lock()
	s.version++
	w := model.NewAttackWindow(s.topology, phase, attackers, now, end, s.version)
	s.current = w
	s.mu.Unlock()

	for {
		select {
		case s.windows <- w:
		default:
			// Newest wins: make room by dropping the oldest pending window.
			select {
			case <-s.windows:
			default:
			}
			continue
		}
		break
	}

	for _, o := range s.observers {
		o.ObserveWindow(ctx, w)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
