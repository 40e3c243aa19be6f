// Package stream fans a topology's labeled record stream out to its writers.
package stream

import (
	"errors"
	"fmt"
	"sync"

	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
)

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("record stream closed")

const defaultSinkBuffer = 64

// Tap receives every emitted batch without back-pressure, e.g. a live feed.
// Publish must not block.
type Tap interface {
	Publish(records []model.LabeledRecord)
}

// Counts summarizes what went through a stream.
type Counts struct {
	Records   uint64 `json:"records"`
	Positives uint64 `json:"positives"`
	Terminal  uint64 `json:"terminal"`
	Batches   uint64 `json:"batches"`
}

type sink struct {
	name   string
	writer model.RecordWriter
	ch     chan []model.LabeledRecord
	errs   []error
}

// Stream is the append-only record stream of one topology run.
// Emit is meant to be called by a single goroutine (the collector); each writer
// is served by its own goroutine so a slow database does not stall polling.
type Stream struct {
	topology string
	sinks    []*sink
	taps     []Tap

	mu     sync.Mutex
	closed bool
	counts Counts
	wg     sync.WaitGroup
}

// NamedWriter pairs a writer with the name used in logs.
type NamedWriter struct {
	Name   string
	Writer model.RecordWriter
}

// New opens a stream over the given writers and starts one goroutine per writer.
func New(topology string, writers []NamedWriter, taps ...Tap) *Stream {
	s := &Stream{topology: topology, taps: taps}
	for _, w := range writers {
		sk := &sink{name: w.Name, writer: w.Writer, ch: make(chan []model.LabeledRecord, defaultSinkBuffer)}
		s.sinks = append(s.sinks, sk)
		s.wg.Add(1)
		go s.runSink(sk)
	}
	logger.WriterLog.Infof("Opened record stream for topology %q with %d writers", topology, len(writers))
	return s
}

// Topology returns the topology the stream belongs to.
func (s *Stream) Topology() string {
	return s.topology
}

// Emit appends one batch of records. The slice must not be modified afterwards.
func (s *Stream) Emit(records []model.LabeledRecord) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.counts.Batches++
	for _, r := range records {
		s.counts.Records++
		if r.Label == 1 {
			s.counts.Positives++
		}
		if r.Terminal {
			s.counts.Terminal++
		}
	}

	for _, sk := range s.sinks {
		sk.ch <- records
	}
	for _, tap := range s.taps {
		tap.Publish(records)
	}
	return nil
}

// Counts returns the totals emitted so far.
func (s *Stream) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts
}

func (s *Stream) runSink(sk *sink) {
	defer s.wg.Done()
	for batch := range sk.ch {
		if err := sk.writer.Write(batch); err != nil {
			logger.WriterLog.Errorf("Writer %s failed for topology %q: %v", sk.name, s.topology, err)
			sk.errs = append(sk.errs, err)
		}
	}
}

// Close waits for every writer to drain its queue, then closes the writers.
// It returns the first write error of each writer together with any close error.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, sk := range s.sinks {
		close(sk.ch)
	}
	s.mu.Unlock()

	s.wg.Wait()

	var errs []error
	for _, sk := range s.sinks {
		if len(sk.errs) > 0 {
			errs = append(errs, fmt.Errorf("writer %s: %d failed writes, first: %w", sk.name, len(sk.errs), sk.errs[0]))
		}
		if err := sk.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close writer %s: %w", sk.name, err))
		}
	}
	c := s.Counts()
	logger.WriterLog.Infof("Closed record stream for topology %q: %d records, %d positive, %d terminal",
		s.topology, c.Records, c.Positives, c.Terminal)
	return errors.Join(errs...)
}
