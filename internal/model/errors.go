package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLinkTimeout is returned when a switch does not answer within the poll timeout.
	ErrLinkTimeout = errors.New("switch link timeout")
	// ErrLinkDown is returned when a switch cannot be reached.
	ErrLinkDown = errors.New("switch link down")
)

// TransientLinkError reports a switch skipped for one poll cycle.
type TransientLinkError struct {
	DatapathID uint64
	Err        error
}

func (e *TransientLinkError) Error() string {
	return fmt.Sprintf("switch %d skipped for this cycle: %v", e.DatapathID, e.Err)
}

func (e *TransientLinkError) Unwrap() error { return e.Err }

// TopologySetupError aborts a single topology run.
type TopologySetupError struct {
	Topology string
	Err      error
}

func (e *TopologySetupError) Error() string {
	return fmt.Sprintf("topology %q setup failed: %v", e.Topology, e.Err)
}

func (e *TopologySetupError) Unwrap() error { return e.Err }

// TimingViolationError reports a misconfigured scheduler phase duration.
type TimingViolationError struct {
	Topology string
	Phase    string
	Duration time.Duration
}

func (e *TimingViolationError) Error() string {
	if e.Topology == "" {
		return fmt.Sprintf("scheduler phase %q has non-positive duration %s", e.Phase, e.Duration)
	}
	return fmt.Sprintf("topology %q: scheduler phase %q has non-positive duration %s", e.Topology, e.Phase, e.Duration)
}
