// Package clickhouse stores labeled records in the ClickHouse flow_records table.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    Timestamp      DateTime64(3),
    Topology       String,
    DatapathID     UInt64,
    FlowID         String,
    SrcIP          String,
    DstIP          String,
    SrcPort        UInt16,
    DstPort        UInt16,
    Protocol       UInt8,
    DurationSec    UInt32,
    DurationNsec   UInt32,
    IdleTimeout    UInt16,
    HardTimeout    UInt16,
    Priority       UInt16,
    PacketCount    UInt64,
    ByteCount      UInt64,
    PacketRate     Float64,
    ByteRate       Float64,
    BytesPerPacket Float64,
    FlowDuration   Float64,
    FlowIAT        Float64,
    IsTCP          UInt8,
    IsUDP          UInt8,
    IsICMP         UInt8,
    IsWellKnown    UInt8,
    Label          UInt8,
    Rule           UInt8,
    Terminal       UInt8
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (Topology, Timestamp, DatapathID);
`

const insertStatement = "INSERT INTO flow_records"

const writeTimeout = 10 * time.Second

func init() {
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, topology string) (model.RecordWriter, error) {
		return NewClickHouseWriter(def.ClickHouse, topology)
	})
}

// ClickHouseWriter implements the model.RecordWriter interface for ClickHouse.
// Each Write is sent as one batch.
type ClickHouseWriter struct {
	conn     driver.Conn
	topology string
	rows     int
}

// NewClickHouseWriter connects and ensures the flow_records table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig, topology string) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	logger.WriterLog.Info("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn, topology: topology}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write inserts one batch of records.
func (w *ClickHouseWriter) Write(records []model.LabeledRecord) error {
	if len(records) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertStatement)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	for i := range records {
		if err := batch.Append(rowValues(&records[i])...); err != nil {
			batch.Abort()
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	w.rows += len(records)
	logger.WriterLog.Debugf("Wrote %d records to ClickHouse for topology '%s'", len(records), w.topology)
	return nil
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	logger.WriterLog.Infof("ClickHouse writer for topology '%s' closed after %d rows", w.topology, w.rows)
	return w.conn.Close()
}

// rowValues returns the column values of a record in flow_records order.
func rowValues(r *model.LabeledRecord) []any {
	id, s, f := r.Identity, r.Snapshot, r.Features
	return []any{
		s.Timestamp,
		r.Topology,
		id.DatapathID,
		id.Key(),
		id.SrcIP,
		id.DstIP,
		id.SrcPort,
		id.DstPort,
		id.Protocol,
		s.DurationSec,
		s.DurationNsec,
		s.IdleTimeout,
		s.HardTimeout,
		s.Priority,
		s.PacketCount,
		s.ByteCount,
		f.PacketRate,
		f.ByteRate,
		f.BytesPerPacket,
		f.FlowDuration,
		f.FlowIAT,
		boolToUInt8(f.IsTCP),
		boolToUInt8(f.IsUDP),
		boolToUInt8(f.IsICMP),
		boolToUInt8(f.IsWellKnownPort),
		r.Label,
		uint8(r.Rule),
		boolToUInt8(r.Terminal),
	}
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
