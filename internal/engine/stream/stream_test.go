package stream

import (
	"errors"
	"sync"
	"testing"

	"Go2FlowLabel/internal/model"
)

type memWriter struct {
	mu      sync.Mutex
	batches [][]model.LabeledRecord
	failOn  int
	closed  bool
}

func (w *memWriter) Write(records []model.LabeledRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, records)
	if w.failOn > 0 && len(w.batches) == w.failOn {
		return errors.New("disk full")
	}
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

type countingTap struct {
	mu sync.Mutex
	n  int
}

func (c *countingTap) Publish(records []model.LabeledRecord) {
	c.mu.Lock()
	c.n += len(records)
	c.mu.Unlock()
}

func batch(labels ...uint8) []model.LabeledRecord {
	out := make([]model.LabeledRecord, len(labels))
	for i, l := range labels {
		out[i] = model.LabeledRecord{Topology: "linear", Label: l, Terminal: i == 0}
	}
	return out
}

func TestStream_FanOutPreservesOrder(t *testing.T) {
	a, b := &memWriter{}, &memWriter{}
	tap := &countingTap{}
	s := New("linear", []NamedWriter{{"a", a}, {"b", b}}, tap)

	for i := 0; i < 10; i++ {
		if err := s.Emit(batch(uint8(i%2), 0)); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if err := s.Emit(nil); err != nil {
		t.Fatalf("Empty emit should be a no-op, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, w := range []*memWriter{a, b} {
		if !w.closed {
			t.Errorf("Writer was not closed")
		}
		if len(w.batches) != 10 {
			t.Fatalf("Expected 10 batches, got %d", len(w.batches))
		}
		for i, got := range w.batches {
			if got[0].Label != uint8(i%2) {
				t.Fatalf("Batch %d arrived out of order", i)
			}
		}
	}
	if tap.n != 20 {
		t.Errorf("Expected the tap to see 20 records, got %d", tap.n)
	}

	c := s.Counts()
	if c.Records != 20 || c.Positives != 5 || c.Terminal != 10 || c.Batches != 10 {
		t.Errorf("Unexpected counts: %+v", c)
	}
}

func TestStream_EmitAfterClose(t *testing.T) {
	s := New("tree", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Emit(batch(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestStream_WriteErrorsSurfaceOnClose(t *testing.T) {
	w := &memWriter{failOn: 2}
	s := New("mesh", []NamedWriter{{"flaky", w}})
	for i := 0; i < 3; i++ {
		if err := s.Emit(batch(0)); err != nil {
			t.Fatalf("Emit failed: %v", err)
		}
	}
	if err := s.Close(); err == nil {
		t.Fatal("Expected the write failure to be reported on Close")
	}
	if len(w.batches) != 3 {
		t.Errorf("A failed write must not stop later batches, got %d", len(w.batches))
	}
}
