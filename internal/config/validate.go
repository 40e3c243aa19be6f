package config

import (
	"errors"
	"fmt"
	"os"
)

// EnvConfigPath overrides the -config flag default when set.
const EnvConfigPath = "FLOWLABEL_CONFIG"

// ResolvePath returns the config path from the environment when flagValue is the default.
func ResolvePath(flagValue, defaultPath string) string {
	if flagValue != defaultPath {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return flagValue
}

// Validate checks the configuration before any topology starts.
// Scheduler timing problems surface as *model.TimingViolationError.
func (c *Config) Validate() error {
	var errs []error

	for _, s := range []struct{ name, value string }{
		{"collector.poll_interval", c.Collector.PollInterval},
		{"collector.request_timeout", c.Collector.RequestTimeout},
		{"collector.drain_timeout", c.Collector.DrainTimeout},
		{"sequencer.pause_between", c.Sequencer.PauseBetween},
		{"sequencer.setup_timeout", c.Sequencer.SetupTimeout},
	} {
		d, err := Duration(s.value, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		} else if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", s.name))
		}
	}

	l := c.Labeler
	if l.PacketRateThreshold < 0 || l.RateSizeThreshold < 0 || l.SizeThreshold < 0 || l.SustainedRateThreshold < 0 {
		errs = append(errs, errors.New("labeler thresholds must not be negative"))
	}

	if len(c.Topologies) == 0 {
		errs = append(errs, errors.New("at least one topology is required"))
	}
	seen := make(map[string]bool, len(c.Topologies))
	for _, t := range c.Topologies {
		if t.Name == "" {
			errs = append(errs, errors.New("topology name is required"))
			continue
		}
		if seen[t.Name] {
			errs = append(errs, fmt.Errorf("duplicate topology %q", t.Name))
		}
		seen[t.Name] = true
		if t.Kind == "" {
			errs = append(errs, fmt.Errorf("topology %q: kind is required", t.Name))
		}
		if t.NumSwitches < 0 || t.HostsPerSwitch < 0 {
			errs = append(errs, fmt.Errorf("topology %q: switch and host counts must not be negative", t.Name))
		}
		if err := validateScheduler(t.Name, c.SchedulerFor(t)); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.SwitchLink.Type {
	case "", "sim", "rest", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown switch_link type %q", c.SwitchLink.Type))
	}
	switch c.Emulator.Type {
	case "", "sim", "nats":
	default:
		errs = append(errs, fmt.Errorf("unknown emulator type %q", c.Emulator.Type))
	}
	switch c.Traffic.Type {
	case "", "sim", "ipc":
	default:
		errs = append(errs, fmt.Errorf("unknown traffic type %q", c.Traffic.Type))
	}
	for i, w := range c.Writers {
		if w.Enabled && w.Type == "" {
			errs = append(errs, fmt.Errorf("writers[%d]: type is required", i))
		}
	}

	return errors.Join(errs...)
}

func validateScheduler(topology string, s SchedulerConfig) error {
	if s.AttackShare < 0 || s.AttackShare >= 1 {
		return fmt.Errorf("topology %q: attack_share must be in [0,1)", topology)
	}
	if s.AttackFraction < 0 || s.AttackFraction >= 1 {
		return fmt.Errorf("topology %q: attack_fraction must be in [0,1)", topology)
	}
	if s.IperfFraction < 0 || s.IperfFraction > 1 {
		return fmt.Errorf("topology %q: iperf_fraction must be in [0,1]", topology)
	}
	if s.MaxVictims < 0 {
		return fmt.Errorf("topology %q: max_victims must not be negative", topology)
	}
	if _, err := s.TrafficTimeoutOrDefault(); err != nil {
		return fmt.Errorf("topology %q: %w", topology, err)
	}
	_, err := s.Plan(topology)
	return err
}
