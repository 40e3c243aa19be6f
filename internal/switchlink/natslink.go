package switchlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when switch_link.nats.subject_prefix is empty.
const DefaultSubjectPrefix = "flowlabel.switch"

// NATSProvider requests flow tables from a controller-side bridge over NATS.
// The bridge answers "<prefix>.<dpid>" with the ofctl_rest flow-stats body.
type NATSProvider struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSProvider connects to the NATS server.
func NewNATSProvider(cfg config.NATSConfig) (*NATSProvider, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger.LinkLog.Infof("Connected to NATS server at %s for flow stats", cfg.URL)
	return &NATSProvider{nc: nc, prefix: prefix}, nil
}

// Links returns one link per switch of the topology.
func (p *NATSProvider) Links(handle *model.TopologyHandle) ([]model.SwitchLink, error) {
	if p.nc.IsClosed() {
		return nil, fmt.Errorf("NATS connection closed: %w", model.ErrLinkDown)
	}
	links := make([]model.SwitchLink, 0, len(handle.Desc.Switches))
	for _, dpid := range handle.Desc.DatapathIDs() {
		links = append(links, &NATSLink{nc: p.nc, dpid: dpid, subject: fmt.Sprintf("%s.%d", p.prefix, dpid)})
	}
	return links, nil
}

// Close closes the NATS connection.
func (p *NATSProvider) Close() {
	p.nc.Close()
}

// NATSLink is one switch reached over NATS request/reply.
type NATSLink struct {
	nc      *nats.Conn
	dpid    uint64
	subject string
}

// DatapathID returns the switch datapath id.
func (l *NATSLink) DatapathID() uint64 { return l.dpid }

// FetchFlows sends an empty request and decodes the reply.
func (l *NATSLink) FetchFlows(ctx context.Context) ([]model.FlowObservation, error) {
	msg, err := l.nc.RequestWithContext(ctx, l.subject, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("switch %d: %v: %w", l.dpid, err, model.ErrLinkTimeout)
		}
		return nil, fmt.Errorf("switch %d: %v: %w", l.dpid, err, model.ErrLinkDown)
	}
	obs, err := decodeFlowStats(l.dpid, msg.Data, time.Now())
	if err != nil {
		return nil, fmt.Errorf("switch %d: %v: %w", l.dpid, err, model.ErrLinkDown)
	}
	return obs, nil
}
