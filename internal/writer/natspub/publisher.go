// Package natspub publishes labeled records to NATS and subscribes to them.
// Each record is one message on <subject_prefix>.<topology>.
package natspub

import (
	"fmt"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is used when the writer config leaves the prefix empty.
const DefaultSubjectPrefix = "flowlabel.records"

func init() {
	factory.RegisterWriter("nats", func(def config.WriterDef, topology string) (model.RecordWriter, error) {
		return NewPublisher(def.NATS, topology)
	})
}

// Subject returns the subject records of a topology are published on.
// An empty topology yields the wildcard subject for all topologies.
func Subject(prefix, topology string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if topology == "" {
		return prefix + ".*"
	}
	return prefix + "." + topology
}

// Publisher is responsible for publishing records to a NATS subject.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher creates a new NATS publisher for a topology.
func NewPublisher(cfg config.NATSConfig, topology string) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.WriterLog.Infof("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: Subject(cfg.SubjectPrefix, topology)}, nil
}

// Write serializes each record to protobuf and publishes it.
func (p *Publisher) Write(records []model.LabeledRecord) error {
	for i := range records {
		data, err := Marshal(&records[i])
		if err != nil {
			return err
		}
		if err := p.nc.Publish(p.subject, data); err != nil {
			return fmt.Errorf("failed to publish record: %w", err)
		}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	logger.WriterLog.Info("NATS connection drained and closed.")
	return nil
}
