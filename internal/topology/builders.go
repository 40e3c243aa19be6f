package topology

import (
	"fmt"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"

	"github.com/iti/rngstream"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// meshLinkProbability is the chance that two mesh switches are linked directly.
const meshLinkProbability = 0.6

func init() {
	Register("linear", buildLinear)
	Register("tree", buildTree)
	Register("mesh", buildMesh)
	Register("datacenter", buildDataCenter)
}

// builder accumulates nodes; switch s<i> has datapath id i and host h<n> has IP 10.0.0.<n>.
type builder struct {
	desc model.TopologyDesc
}

func (b *builder) addSwitch() string {
	id := len(b.desc.Switches) + 1
	name := fmt.Sprintf("s%d", id)
	b.desc.Switches = append(b.desc.Switches, model.Switch{Name: name, DatapathID: uint64(id)})
	return name
}

func (b *builder) addHost(sw string, bw float64, delay string) error {
	n := len(b.desc.Hosts) + 1
	if n > 254 {
		return fmt.Errorf("too many hosts for a /24: %d", n)
	}
	name := fmt.Sprintf("h%d", n)
	b.desc.Hosts = append(b.desc.Hosts, model.Host{Name: name, IP: fmt.Sprintf("10.0.0.%d", n), Switch: sw})
	b.link(name, sw, bw, delay, 0)
	return nil
}

func (b *builder) addHosts(sw string, def config.TopologyDef) error {
	for j := 0; j < def.HostsPerSwitch; j++ {
		if err := b.addHost(sw, def.Bandwidth/2, hostLinkDelay); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) link(a, c string, bw float64, delay string, loss float64) {
	b.desc.Links = append(b.desc.Links, model.Link{A: a, B: c, Bandwidth: bw, Delay: delay, Loss: loss})
}

func (b *builder) trunk(a, c string, def config.TopologyDef) {
	b.link(a, c, def.Bandwidth, def.Delay, def.Loss)
}

// buildLinear chains the switches s1-s2-...-sN, each with its own hosts.
func buildLinear(def config.TopologyDef) (model.TopologyDesc, error) {
	b := &builder{}
	switches := make([]string, def.NumSwitches)
	for i := range switches {
		switches[i] = b.addSwitch()
		if i > 0 {
			b.trunk(switches[i-1], switches[i], def)
		}
	}
	for _, sw := range switches {
		if err := b.addHosts(sw, def); err != nil {
			return model.TopologyDesc{}, err
		}
	}
	return b.desc, nil
}

// buildTree links a core switch to NumSwitches-1 aggregation switches that carry the hosts.
func buildTree(def config.TopologyDef) (model.TopologyDesc, error) {
	if def.NumSwitches < 2 {
		return model.TopologyDesc{}, fmt.Errorf("tree needs at least 2 switches, got %d", def.NumSwitches)
	}
	b := &builder{}
	core := b.addSwitch()
	var aggs []string
	for i := 1; i < def.NumSwitches; i++ {
		agg := b.addSwitch()
		b.trunk(core, agg, def)
		aggs = append(aggs, agg)
	}
	for _, agg := range aggs {
		if err := b.addHosts(agg, def); err != nil {
			return model.TopologyDesc{}, err
		}
	}
	return b.desc, nil
}

// buildMesh links every pair of switches with probability 0.6, then joins any
// disconnected islands so every host can reach every other.
func buildMesh(def config.TopologyDef) (model.TopologyDesc, error) {
	b := &builder{}
	switches := make([]string, def.NumSwitches)
	for i := range switches {
		switches[i] = b.addSwitch()
	}

	rng := rngstream.New("mesh-" + def.Name)
	g := simple.NewUndirectedGraph()
	for i := range switches {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < len(switches); i++ {
		for j := i + 1; j < len(switches); j++ {
			if rng.RandU01() < meshLinkProbability {
				b.trunk(switches[i], switches[j], def)
				g.SetEdge(g.NewEdge(simple.Node(i), simple.Node(j)))
			}
		}
	}

	components := topo.ConnectedComponents(g)
	if len(components) > 1 {
		anchor := minID(components[0])
		for _, c := range components[1:] {
			b.trunk(switches[anchor], switches[minID(c)], def)
		}
	}

	for _, sw := range switches {
		if err := b.addHosts(sw, def); err != nil {
			return model.TopologyDesc{}, err
		}
	}
	return b.desc, nil
}

func minID(nodes []graph.Node) int {
	m := nodes[0].ID()
	for _, n := range nodes[1:] {
		if n.ID() < m {
			m = n.ID()
		}
	}
	return int(m)
}

// buildDataCenter builds 2 core, 4 aggregation and 8 edge switches; hosts hang off the edge layer.
func buildDataCenter(def config.TopologyDef) (model.TopologyDesc, error) {
	b := &builder{}
	core1, core2 := b.addSwitch(), b.addSwitch()
	b.link(core1, core2, def.Bandwidth*2, "", 0)

	var aggs []string
	for i := 0; i < 4; i++ {
		agg := b.addSwitch()
		b.link(agg, core1, def.Bandwidth, "", 0)
		b.link(agg, core2, def.Bandwidth, "", 0)
		aggs = append(aggs, agg)
	}

	for _, agg := range aggs {
		for e := 0; e < 2; e++ {
			edge := b.addSwitch()
			b.link(edge, agg, def.Bandwidth/2, "", 0)
			for h := 0; h < def.HostsPerSwitch; h++ {
				if err := b.addHost(edge, 10, "1ms"); err != nil {
					return model.TopologyDesc{}, err
				}
			}
		}
	}
	return b.desc, nil
}
