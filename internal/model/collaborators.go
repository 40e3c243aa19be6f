package model

import "context"

// SwitchLink is the abstraction over one managed forwarding device.
type SwitchLink interface {
	DatapathID() uint64

	// FetchFlows reads the current flow-table counters as one atomic snapshot.
	// It must return once ctx is done. Failures wrap ErrLinkTimeout or ErrLinkDown.
	FetchFlows(ctx context.Context) ([]FlowObservation, error)
}

// Emulator instantiates and tears down network topologies.
type Emulator interface {
	CreateTopology(ctx context.Context, desc TopologyDesc) (*TopologyHandle, error)
	DestroyTopology(ctx context.Context, handle *TopologyHandle) error
	ListHosts(ctx context.Context, handle *TopologyHandle) ([]Host, error)
}

// LinkProvider returns the switch links of an instantiated topology.
type LinkProvider interface {
	Links(handle *TopologyHandle) ([]SwitchLink, error)
}

// TrafficGenerator launches and stops traffic sources on hosts.
// Calls are fire-and-forget: only the success of the launch is reported.
type TrafficGenerator interface {
	Start(ctx context.Context, host string, profile TrafficProfile) error
	Stop(ctx context.Context, host string, profile string) error
}

// WindowObserver is notified of every AttackWindow the scheduler publishes.
type WindowObserver interface {
	ObserveWindow(ctx context.Context, window AttackWindow)
}
