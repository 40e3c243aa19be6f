package sim

import (
	"hash/fnv"

	"Go2FlowLabel/internal/model"

	"github.com/google/gopacket/layers"
)

// rateModel is the packet rate and size a traffic profile produces.
type rateModel struct {
	proto   layers.IPProtocol
	dstPort uint16
	pps     float64
	size    uint64 // bytes per packet
}

const (
	iperfPort    = 5001
	iperfPktSize = 1500
)

// modelFor returns the counters model of a profile kind.
func modelFor(p model.TrafficProfile) (rateModel, bool) {
	switch p.Kind {
	case model.ProfilePing:
		pps := 2.0
		if p.Interval > 0 {
			pps = 1 / p.Interval.Seconds()
		}
		return rateModel{proto: layers.IPProtocolICMPv4, pps: pps, size: 98}, true
	case model.ProfileIperf:
		mbps := p.RateMbps
		if mbps <= 0 {
			mbps = 10
		}
		return rateModel{proto: layers.IPProtocolTCP, dstPort: iperfPort, pps: mbps * 1e6 / 8 / iperfPktSize, size: iperfPktSize}, true
	case model.ProfileICMPFlood:
		return rateModel{proto: layers.IPProtocolICMPv4, pps: 20000, size: 42}, true
	case model.ProfileSYNFlood:
		return rateModel{proto: layers.IPProtocolTCP, dstPort: portOr(p.Port, 80), pps: 15000, size: 54}, true
	case model.ProfileUDPFlood:
		return rateModel{proto: layers.IPProtocolUDP, dstPort: portOr(p.Port, 53), pps: 18000, size: 42}, true
	}
	return rateModel{}, false
}

func portOr(p, def uint16) uint16 {
	if p == 0 {
		return def
	}
	return p
}

// sourcePort picks a stable ephemeral port for a (host, profile) pair.
// ICMP carries no ports.
func sourcePort(proto layers.IPProtocol, host, profile string) uint16 {
	if proto == layers.IPProtocolICMPv4 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(host + "/" + profile))
	return uint16(32768 + h.Sum32()%28232)
}
