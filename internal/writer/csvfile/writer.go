// Package csvfile writes a topology's labeled records as the dataset CSV consumed by
// the dataset finalizer.
package csvfile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"
)

func init() {
	factory.RegisterWriter("csv", func(def config.WriterDef, topology string) (model.RecordWriter, error) {
		return NewWriter(def.CSV.RootPath, topology, time.Now())
	})
}

// Columns is the dataset header. The first 25 columns are the historical schema;
// the remaining ones were added later and must stay at the end.
var Columns = []string{
	"timestamp", "datapath_id", "flow_id",
	"src_ip", "dst_ip", "src_port", "dst_port", "protocol",
	"duration_sec", "duration_nsec", "idle_timeout", "hard_timeout",
	"priority", "packet_count", "byte_count",
	"packet_rate", "byte_rate", "flow_speed",
	"packets_per_flow", "bytes_per_packet", "bytes_per_flow",
	"flow_duration", "flow_iat", "active_time",
	"label",
	"is_tcp", "is_udp", "is_icmp", "is_well_known_port", "terminal", "topology",
}

// FileName returns the dataset file name of a topology run started at t.
func FileName(topology string, t time.Time) string {
	return fmt.Sprintf("sdn_ddos_dataset_%s_%d.csv", topology, t.Unix())
}

// Writer appends records to one CSV file.
type Writer struct {
	path string
	file *os.File
	w    *csv.Writer
	rows int
}

// NewWriter creates the dataset file under rootPath and writes the header.
func NewWriter(rootPath, topology string, started time.Time) (*Writer, error) {
	if rootPath == "" {
		rootPath = "."
	}
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(rootPath, FileName(topology, started))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset file '%s': %w", path, err)
	}

	w := csv.NewWriter(file)
	if err := w.Write(Columns); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	logger.WriterLog.Infof("CSV dataset file initialized: %s", path)
	return &Writer{path: path, file: file, w: w}, nil
}

// Path returns the dataset file path.
func (w *Writer) Path() string {
	return w.path
}

// Write appends one row per record and flushes, so an interrupted run keeps
// every completed cycle on disk.
func (w *Writer) Write(records []model.LabeledRecord) error {
	for i := range records {
		if err := w.w.Write(Row(&records[i])); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv rows: %w", err)
	}
	w.rows += len(records)
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.w.Flush()
	flushErr := w.w.Error()
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close dataset file '%s': %w", w.path, err)
	}
	if flushErr != nil {
		return fmt.Errorf("failed to flush dataset file '%s': %w", w.path, flushErr)
	}
	logger.WriterLog.Infof("Wrote %d rows to %s", w.rows, w.path)
	return nil
}

// Row renders a record in Columns order.
func Row(r *model.LabeledRecord) []string {
	id, s, f := r.Identity, r.Snapshot, r.Features
	return []string{
		s.Timestamp.Format(time.RFC3339Nano),
		u64(id.DatapathID),
		id.Key(),
		ipOrZero(id.SrcIP), ipOrZero(id.DstIP),
		u64(uint64(id.SrcPort)), u64(uint64(id.DstPort)), u64(uint64(id.Protocol)),
		u64(uint64(s.DurationSec)), u64(uint64(s.DurationNsec)),
		u64(uint64(s.IdleTimeout)), u64(uint64(s.HardTimeout)),
		u64(uint64(s.Priority)), u64(s.PacketCount), u64(s.ByteCount),
		float(f.PacketRate), float(f.ByteRate), float(f.PacketRate),
		u64(s.PacketCount), float(f.BytesPerPacket), u64(s.ByteCount),
		float(f.FlowDuration), float(f.FlowIAT), float(f.FlowDuration),
		u64(uint64(r.Label)),
		flag(f.IsTCP), flag(f.IsUDP), flag(f.IsICMP), flag(f.IsWellKnownPort), flag(r.Terminal),
		r.Topology,
	}
}

func ipOrZero(ip string) string {
	if ip == "" {
		return "0.0.0.0"
	}
	return ip
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func float(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
