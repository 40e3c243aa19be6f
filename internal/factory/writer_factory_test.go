package factory

import (
	"errors"
	"strings"
	"testing"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/model"
)

type nopWriter struct{ closed *int }

func (w nopWriter) Write([]model.LabeledRecord) error { return nil }
func (w nopWriter) Close() error {
	*w.closed++
	return nil
}

var closed int

func init() {
	RegisterWriter("test_nop", func(config.WriterDef, string) (model.RecordWriter, error) {
		return nopWriter{closed: &closed}, nil
	})
	RegisterWriter("test_broken", func(config.WriterDef, string) (model.RecordWriter, error) {
		return nil, errors.New("connection refused")
	})
}

func TestOpen_SkipsDisabled(t *testing.T) {
	writers, err := Open([]config.WriterDef{
		{Type: "test_nop", Enabled: true},
		{Type: "test_broken", Enabled: false},
	}, "linear")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(writers) != 1 || writers[0].Name != "test_nop" {
		t.Errorf("Unexpected writers: %+v", writers)
	}
}

func TestOpen_ClosesOnFailure(t *testing.T) {
	closed = 0
	_, err := Open([]config.WriterDef{
		{Type: "test_nop", Enabled: true},
		{Type: "test_broken", Enabled: true},
	}, "linear")
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Expected the factory error, got %v", err)
	}
	if closed != 1 {
		t.Errorf("Expected the opened writer to be closed, closed %d", closed)
	}
}

func TestCheckTypes(t *testing.T) {
	err := CheckTypes([]config.WriterDef{
		{Type: "test_nop", Enabled: true},
		{Type: "parquet", Enabled: true},
		{Type: "avro", Enabled: false},
	})
	if err == nil || !strings.Contains(err.Error(), "parquet") || strings.Contains(err.Error(), "avro") {
		t.Errorf("Unexpected result: %v", err)
	}
}

func TestRegisterWriter_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic on duplicate registration")
		}
	}()
	RegisterWriter("test_nop", nil)
}

func TestTypes(t *testing.T) {
	got := strings.Join(Types(), ",")
	if !strings.Contains(got, "test_broken,test_nop") {
		t.Errorf("Unexpected types: %s", got)
	}
}
