// Package natsemu drives an emulator-side agent (Mininet wrapper) over NATS
// request/reply. Requests and replies are JSON.
package natsemu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when emulator.nats.subject_prefix is empty.
const DefaultSubjectPrefix = "flowlabel.emulator"

// Subjects served by the agent, relative to the prefix.
const (
	SubjectCreate  = "create"
	SubjectDestroy = "destroy"
	SubjectHosts   = "hosts"
)

// CreateRequest asks the agent to bring up a topology.
type CreateRequest struct {
	Topology model.TopologyDesc `json:"topology"`
}

// HandleRequest refers to a running topology.
type HandleRequest struct {
	ID string `json:"id"`
}

// Reply is the agent's answer to every request. Error is empty on success.
type Reply struct {
	ID    string       `json:"id,omitempty"`
	Hosts []model.Host `json:"hosts,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Client implements model.Emulator over NATS.
type Client struct {
	nc     *nats.Conn
	prefix string
}

// NewClient connects to the NATS server named in cfg.
func NewClient(cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger.EmuLog.Infof("Connected to NATS server at %s for emulator control", cfg.URL)
	return &Client{nc: nc, prefix: prefix}, nil
}

// CreateTopology asks the agent to instantiate desc.
func (c *Client) CreateTopology(ctx context.Context, desc model.TopologyDesc) (*model.TopologyHandle, error) {
	reply, err := c.call(ctx, SubjectCreate, CreateRequest{Topology: desc})
	if err != nil {
		return nil, err
	}
	if reply.ID == "" {
		return nil, errors.New("emulator agent returned no topology id")
	}
	logger.EmuLog.Infof("Emulator agent brought up topology %s (%s)", desc.Name, reply.ID)
	return &model.TopologyHandle{ID: reply.ID, Desc: desc}, nil
}

// DestroyTopology asks the agent to tear the topology down.
func (c *Client) DestroyTopology(ctx context.Context, handle *model.TopologyHandle) error {
	_, err := c.call(ctx, SubjectDestroy, HandleRequest{ID: handle.ID})
	return err
}

// ListHosts returns the hosts the agent reports for the topology.
func (c *Client) ListHosts(ctx context.Context, handle *model.TopologyHandle) ([]model.Host, error) {
	reply, err := c.call(ctx, SubjectHosts, HandleRequest{ID: handle.ID})
	if err != nil {
		return nil, err
	}
	return reply.Hosts, nil
}

// Close closes the NATS connection.
func (c *Client) Close() {
	c.nc.Close()
}

func (c *Client) call(ctx context.Context, subject string, req any) (Reply, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to encode %s request: %w", subject, err)
	}
	msg, err := c.nc.RequestWithContext(ctx, c.prefix+"."+subject, data)
	if err != nil {
		return Reply{}, fmt.Errorf("emulator %s request failed: %w", subject, err)
	}
	return decodeReply(subject, msg.Data)
}

func decodeReply(subject string, data []byte) (Reply, error) {
	var reply Reply
	if err := json.Unmarshal(data, &reply); err != nil {
		return Reply{}, fmt.Errorf("failed to decode %s reply: %w", subject, err)
	}
	if reply.Error != "" {
		return reply, fmt.Errorf("emulator agent failed to %s: %s", subject, reply.Error)
	}
	return reply, nil
}
