package natspub

import (
	"fmt"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/nats-io/nats.go"
	"google.golang.org/protobuf/types/known/structpb"
)

// RecordHandler processes a received record together with its wire form.
type RecordHandler func(r model.LabeledRecord, raw *structpb.Struct)

// Subscriber is responsible for subscribing to record subjects.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
}

// NewSubscriber connects to NATS; topology may be empty to follow every topology.
func NewSubscriber(url, prefix, topology string) (*Subscriber, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.MainLog.Infof("Connected to NATS server at %s", url)
	return &Subscriber{nc: nc, subject: Subject(prefix, topology)}, nil
}

// Start subscribes and hands every decoded record to handler.
func (s *Subscriber) Start(handler RecordHandler) error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		r, raw, err := Unmarshal(msg.Data)
		if err != nil {
			logger.MainLog.Warnf("Dropping message on %s: %v", msg.Subject, err)
			return
		}
		handler(r, raw)
	})
	if err != nil {
		return err
	}
	s.sub = sub
	logger.MainLog.Infof("Subscribed to '%s'. Waiting for records...", s.subject)
	return nil
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		logger.MainLog.Info("NATS connection closed.")
	}
}
