package model

import "time"

// Host is an emulated end host.
type Host struct {
	Name   string `json:"name" yaml:"name"`
	IP     string `json:"ip" yaml:"ip"`
	Switch string `json:"switch" yaml:"switch"`
}

// Switch is an emulated OpenFlow switch.
type Switch struct {
	Name       string `json:"name" yaml:"name"`
	DatapathID uint64 `json:"dpid" yaml:"dpid"`
}

// Link connects two nodes (switches or hosts) by name.
type Link struct {
	A         string  `json:"a" yaml:"a"`
	B         string  `json:"b" yaml:"b"`
	// Bandwidth is in Mbps.
	Bandwidth float64 `json:"bw" yaml:"bw"`
	// Delay is a duration string such as "5ms".
	Delay     string  `json:"delay,omitempty" yaml:"delay,omitempty"`
	Loss      float64 `json:"loss,omitempty" yaml:"loss,omitempty"`
}

// TopologyDesc is the network description handed to an Emulator.
type TopologyDesc struct {
	Name     string   `json:"name" yaml:"name"`
	Kind     string   `json:"kind" yaml:"kind"`
	Switches []Switch `json:"switches" yaml:"switches"`
	Hosts    []Host   `json:"hosts" yaml:"hosts"`
	Links    []Link   `json:"links" yaml:"links"`
}

// DatapathIDs returns the datapath ids of all switches in the description.
func (d TopologyDesc) DatapathIDs() []uint64 {
	ids := make([]uint64, len(d.Switches))
	for i, s := range d.Switches {
		ids[i] = s.DatapathID
	}
	return ids
}

// TopologyHandle refers to a topology instantiated by an Emulator.
type TopologyHandle struct {
	ID   string
	Desc TopologyDesc
}

// Traffic profile kinds understood by traffic generators.
const (
	ProfilePing      = "ping"
	ProfileIperf     = "iperf"
	ProfileICMPFlood = "icmp_flood"
	ProfileSYNFlood  = "syn_flood"
	ProfileUDPFlood  = "udp_flood"
)

// TrafficProfile describes one traffic source launched on a host.
type TrafficProfile struct {
	// Name is unique per host and is used to stop the source.
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Target   string        `json:"target"`
	TargetIP string        `json:"target_ip"`
	Port     uint16        `json:"port,omitempty"`
	RateMbps float64       `json:"rate_mbps,omitempty"`
	Interval time.Duration `json:"interval,omitempty"`
	Duration time.Duration `json:"duration"`
}

// IsFlood reports whether the profile is an attack profile.
func (p TrafficProfile) IsFlood() bool {
	switch p.Kind {
	case ProfileICMPFlood, ProfileSYNFlood, ProfileUDPFlood:
		return true
	}
	return false
}
