// Package postgres provides PostgreSQL record writing with one transaction per batch.
package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"Go2FlowLabel/internal/config"
	"Go2FlowLabel/internal/factory"
	"Go2FlowLabel/internal/logger"
	"Go2FlowLabel/internal/model"

	_ "github.com/lib/pq"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
	id               BIGSERIAL PRIMARY KEY,
	observed_at      TIMESTAMPTZ NOT NULL,
	topology         TEXT NOT NULL,
	datapath_id      BIGINT NOT NULL,
	flow_id          TEXT NOT NULL,
	src_ip           TEXT NOT NULL,
	dst_ip           TEXT NOT NULL,
	src_port         INTEGER NOT NULL,
	dst_port         INTEGER NOT NULL,
	protocol         SMALLINT NOT NULL,
	duration_sec     BIGINT NOT NULL,
	duration_nsec    BIGINT NOT NULL,
	priority         INTEGER NOT NULL,
	packet_count     BIGINT NOT NULL,
	byte_count       BIGINT NOT NULL,
	packet_rate      DOUBLE PRECISION NOT NULL,
	byte_rate        DOUBLE PRECISION NOT NULL,
	bytes_per_packet DOUBLE PRECISION NOT NULL,
	flow_duration    DOUBLE PRECISION NOT NULL,
	flow_iat         DOUBLE PRECISION NOT NULL,
	label            SMALLINT NOT NULL,
	rule             SMALLINT NOT NULL,
	terminal         BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS flow_records_topology_idx ON flow_records (topology, observed_at);
`

const insertStatement = `
	INSERT INTO flow_records (
		observed_at, topology, datapath_id, flow_id,
		src_ip, dst_ip, src_port, dst_port, protocol,
		duration_sec, duration_nsec, priority, packet_count, byte_count,
		packet_rate, byte_rate, bytes_per_packet, flow_duration, flow_iat,
		label, rule, terminal
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
`

func init() {
	factory.RegisterWriter("postgres", func(def config.WriterDef, topology string) (model.RecordWriter, error) {
		return NewWriter(def.Postgres.URL, topology)
	})
}

// execer is the part of *sql.Tx used to insert rows.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Writer handles batch writing of labeled records to PostgreSQL.
type Writer struct {
	db       *sql.DB
	topology string

	recordsWritten uint64
	batchesWritten uint64
}

// NewWriter connects to the database and ensures the flow_records table exists.
func NewWriter(databaseURL, topology string) (*Writer, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := db.Exec(createTableStatement); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.WriterLog.Info("Connected to PostgreSQL database")
	return &Writer{db: db, topology: topology}, nil
}

// Write inserts the batch in a single transaction.
func (w *Writer) Write(records []model.LabeledRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertBatch(tx, records); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	w.recordsWritten += uint64(len(records))
	w.batchesWritten++
	return nil
}

// Close closes the database handle.
func (w *Writer) Close() error {
	logger.WriterLog.Infof("PostgreSQL writer for topology %q stopped (written=%d, batches=%d)",
		w.topology, w.recordsWritten, w.batchesWritten)
	return w.db.Close()
}

func insertBatch(tx execer, records []model.LabeledRecord) error {
	for i := range records {
		r := &records[i]
		id, s, f := r.Identity, r.Snapshot, r.Features
		_, err := tx.Exec(insertStatement,
			s.Timestamp,
			r.Topology,
			int64(id.DatapathID),
			id.Key(),
			id.SrcIP,
			id.DstIP,
			int(id.SrcPort),
			int(id.DstPort),
			int(id.Protocol),
			int64(s.DurationSec),
			int64(s.DurationNsec),
			int(s.Priority),
			int64(s.PacketCount),
			int64(s.ByteCount),
			f.PacketRate,
			f.ByteRate,
			f.BytesPerPacket,
			f.FlowDuration,
			f.FlowIAT,
			int(r.Label),
			r.Rule,
			r.Terminal,
		)
		if err != nil {
			return fmt.Errorf("failed to insert record %s: %w", id.Key(), err)
		}
	}
	return nil
}
