package csvfile

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/model"
)

func sampleRecord() model.LabeledRecord {
	return model.LabeledRecord{
		Topology: "linear",
		Identity: model.FlowIdentity{DatapathID: 3, SrcIP: "10.0.0.1", DstIP: "10.0.0.4", SrcPort: 40000, DstPort: 53, Protocol: 17},
		Snapshot: model.FlowSnapshot{
			Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			DurationSec: 4, DurationNsec: 500000000,
			IdleTimeout: 10, HardTimeout: 30, Priority: 1,
			PacketCount: 9000, ByteCount: 378000,
		},
		Features: model.FeatureVector{PacketRate: 1800, ByteRate: 75600, BytesPerPacket: 42, FlowDuration: 4.5, FlowIAT: 5, IsUDP: true, IsWellKnownPort: true},
		Label:    1,
		Rule:     1,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse csv: %v", err)
	}
	return rows
}

func TestWriter_HeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	started := time.Unix(1714564800, 0)
	w, err := NewWriter(dir, "linear", started)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if filepath.Base(w.Path()) != "sdn_ddos_dataset_linear_1714564800.csv" {
		t.Errorf("Unexpected file name: %s", w.Path())
	}

	r := sampleRecord()
	if err := w.Write([]model.LabeledRecord{r}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Rows are on disk before Close.
	if rows := readAll(t, w.Path()); len(rows) != 2 {
		t.Fatalf("Expected header and one row before close, got %d rows", len(rows))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rows := readAll(t, w.Path())
	if len(rows[0]) != 31 || rows[0][0] != "timestamp" || rows[0][24] != "label" {
		t.Fatalf("Unexpected header: %v", rows[0])
	}
	row := rows[1]
	want := map[int]string{
		1:  "3",
		2:  "3_10.0.0.1_10.0.0.4_40000_53_17",
		7:  "17",
		13: "9000",
		15: "1800",
		17: "1800",
		19: "42",
		22: "5",
		23: "4.5",
		24: "1",
		26: "1",
		29: "0",
		30: "linear",
	}
	for i, v := range want {
		if row[i] != v {
			t.Errorf("Column %s = %q, want %q", rows[0][i], row[i], v)
		}
	}
}

func TestRow_MissingAddresses(t *testing.T) {
	r := model.LabeledRecord{Identity: model.FlowIdentity{DatapathID: 1}}
	row := Row(&r)
	if row[3] != "0.0.0.0" || row[4] != "0.0.0.0" {
		t.Errorf("Missing addresses should render as 0.0.0.0, got %q %q", row[3], row[4])
	}
}

func TestRegisteredWithFactory(t *testing.T) {
	dir := t.TempDir()
	writers, err := factory.Open([]config.WriterDef{{Type: "csv", Enabled: true, CSV: config.FileConfig{RootPath: dir}}}, "tree")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(writers) != 1 || writers[0].Name != "csv" {
		t.Fatalf("Expected one csv writer, got %+v", writers)
	}
	if err := writers[0].Writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "sdn_ddos_dataset_tree_*.csv"))
	if len(matches) != 1 {
		t.Errorf("Expected one dataset file, got %v", matches)
	}
}
