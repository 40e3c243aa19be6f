// Package topology builds the network descriptions handed to the emulator.
package topology

import (
	"fmt"
	"sort"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

const (
	defaultSwitches       = 4
	defaultHostsPerSwitch = 3
	defaultBandwidth      = 100 // Mbps
	defaultDelay          = "5ms"
	hostLinkDelay         = "2ms"
)

// Builder turns a topology definition into a network description.
type Builder func(def config.TopologyDef) (model.TopologyDesc, error)

// registry holds the mapping of topology kinds to their builders.
var registry = make(map[string]Builder)

// Register registers a builder for a topology kind.
func Register(kind string, b Builder) {
	if _, exists := registry[kind]; exists {
		panic(fmt.Sprintf("topology kind '%s' already registered", kind))
	}
	registry[kind] = b
}

// Kinds returns the registered topology kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build resolves defaults, runs the builder registered for def.Kind and checks the result.
func Build(def config.TopologyDef) (model.TopologyDesc, error) {
	b, ok := registry[def.Kind]
	if !ok {
		return model.TopologyDesc{}, fmt.Errorf("unknown topology kind: '%s'", def.Kind)
	}
	def = withDefaults(def)
	desc, err := b(def)
	if err != nil {
		return model.TopologyDesc{}, fmt.Errorf("failed to build topology %q: %w", def.Name, err)
	}
	desc.Name = def.Name
	desc.Kind = def.Kind
	if err := Validate(desc); err != nil {
		return model.TopologyDesc{}, err
	}
	return desc, nil
}

func withDefaults(def config.TopologyDef) config.TopologyDef {
	if def.NumSwitches == 0 {
		def.NumSwitches = defaultSwitches
	}
	if def.HostsPerSwitch == 0 {
		def.HostsPerSwitch = defaultHostsPerSwitch
	}
	if def.Bandwidth == 0 {
		def.Bandwidth = defaultBandwidth
	}
	if def.Delay == "" {
		def.Delay = defaultDelay
	}
	return def
}

// Validate checks names, addresses and that every node is reachable.
func Validate(desc model.TopologyDesc) error {
	ids := make(map[string]int64)
	g := simple.NewUndirectedGraph()
	addNode := func(name string) error {
		if _, dup := ids[name]; dup {
			return fmt.Errorf("topology %q: duplicate node %q", desc.Name, name)
		}
		id := int64(len(ids))
		ids[name] = id
		g.AddNode(simple.Node(id))
		return nil
	}

	dpids := make(map[uint64]bool)
	for _, s := range desc.Switches {
		if err := addNode(s.Name); err != nil {
			return err
		}
		if dpids[s.DatapathID] {
			return fmt.Errorf("topology %q: duplicate datapath id %d", desc.Name, s.DatapathID)
		}
		dpids[s.DatapathID] = true
	}
	ips := make(map[string]bool)
	for _, h := range desc.Hosts {
		if err := addNode(h.Name); err != nil {
			return err
		}
		if ips[h.IP] {
			return fmt.Errorf("topology %q: duplicate host IP %s", desc.Name, h.IP)
		}
		ips[h.IP] = true
	}

	for _, l := range desc.Links {
		a, okA := ids[l.A]
		b, okB := ids[l.B]
		if !okA || !okB {
			return fmt.Errorf("topology %q: link %s-%s references an unknown node", desc.Name, l.A, l.B)
		}
		if a == b {
			return fmt.Errorf("topology %q: self link on %s", desc.Name, l.A)
		}
		g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
	}

	if len(ids) == 0 {
		return fmt.Errorf("topology %q is empty", desc.Name)
	}
	if n := len(topo.ConnectedComponents(g)); n != 1 {
		return fmt.Errorf("topology %q is not connected: %d components", desc.Name, n)
	}
	return nil
}
