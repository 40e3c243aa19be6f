package ipclauncher

import (
	"fmt"
	"math"

	"Go2FlowLabel/internal/model"
)

// Command renders the shell command a Mininet host runs for a profile.
func Command(p model.TrafficProfile) (string, error) {
	target := p.TargetIP
	if target == "" {
		return "", fmt.Errorf("profile %q has no target IP", p.Name)
	}
	limit := ""
	if p.Duration > 0 {
		limit = fmt.Sprintf("timeout %d ", int(math.Ceil(p.Duration.Seconds())))
	}

	switch p.Kind {
	case model.ProfilePing:
		interval := 0.5
		if p.Interval > 0 {
			interval = p.Interval.Seconds()
		}
		return fmt.Sprintf("%sping -i %g %s", limit, interval, target), nil
	case model.ProfileIperf:
		rate := p.RateMbps
		if rate <= 0 {
			rate = 10
		}
		secs := int(math.Ceil(p.Duration.Seconds()))
		if secs <= 0 {
			secs = 10
		}
		return fmt.Sprintf("%siperf -c %s -t %d -b %gM", limit, target, secs, rate), nil
	case model.ProfileICMPFlood:
		return fmt.Sprintf("%shping3 --icmp --flood %s", limit, target), nil
	case model.ProfileSYNFlood:
		return fmt.Sprintf("%shping3 -S --flood -p %d %s", limit, portOr(p.Port, 80), target), nil
	case model.ProfileUDPFlood:
		return fmt.Sprintf("%shping3 --udp --flood -p %d %s", limit, portOr(p.Port, 53), target), nil
	}
	return "", fmt.Errorf("unknown traffic profile kind %q", p.Kind)
}

func portOr(p, def uint16) uint16 {
	if p == 0 {
		return def
	}
	return p
}
