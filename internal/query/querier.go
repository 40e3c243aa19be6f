// Package query reads the labeled dataset back from ClickHouse.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"Go2FlowLabel/internal/config"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClassCount is the size of one label class of a topology.
type ClassCount struct {
	Topology string `json:"topology"`
	Label    uint8  `json:"label"`
	Records  uint64 `json:"records"`
	Flows    uint64 `json:"flows"`
}

// FlowLifecycle summarises every sample of one flow on one switch.
// Counters restart when the entry is re-installed, so the peaks are the
// largest single reading rather than a total.
type FlowLifecycle struct {
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Samples     uint64    `json:"samples"`
	PeakPackets uint64    `json:"peak_packets"`
	PeakBytes   uint64    `json:"peak_bytes"`
	Positive    bool      `json:"positive"`
}

// Querier defines the queries over flow_records.
type Querier interface {
	ClassBalance(ctx context.Context, topology string, until time.Time) ([]ClassCount, error)
	TraceFlow(ctx context.Context, topology string, keys map[string]string) (*FlowLifecycle, error)
	Close() error
}

type clickhouseQuerier struct {
	conn driver.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
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
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return conn, nil
}

// classBalanceQuery builds the per-topology, per-label counts query.
func classBalanceQuery(topology string, until time.Time) (string, []any) {
	var b strings.Builder
	b.WriteString(`
		SELECT
			Topology,
			Label,
			count() AS Records,
			uniqExact(FlowID) AS Flows
		FROM flow_records`)

	var where []string
	var args []any
	if topology != "" {
		where = append(where, "Topology = ?")
		args = append(args, topology)
	}
	if !until.IsZero() {
		where = append(where, "Timestamp <= ?")
		args = append(args, until)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" GROUP BY Topology, Label ORDER BY Topology, Label")
	return b.String(), args
}

// flowKeyColumns are the columns a flow can be traced by.
var flowKeyColumns = map[string]bool{
	"DatapathID": true, "SrcIP": true, "DstIP": true,
	"SrcPort": true, "DstPort": true, "Protocol": true,
}

// traceFlowQuery builds the lifecycle query of one flow. Counters are per
// switch, so DatapathID must be among the keys.
func traceFlowQuery(topology string, keys map[string]string) (string, []any, error) {
	if topology == "" {
		return "", nil, fmt.Errorf("topology is required")
	}
	if keys["DatapathID"] == "" {
		return "", nil, fmt.Errorf("DatapathID is required to trace a flow")
	}

	var b strings.Builder
	b.WriteString(`
		SELECT
			min(Timestamp) AS FirstSeen,
			max(Timestamp) AS LastSeen,
			count() AS Samples,
			max(PacketCount) AS PeakPackets,
			max(ByteCount) AS PeakBytes,
			max(Label) AS Positive
		FROM flow_records
		WHERE Topology = ?`)
	args := []any{topology}

	names := make([]string, 0, len(keys))
	for k := range keys {
		if !flowKeyColumns[k] {
			return "", nil, fmt.Errorf("unsupported flow key: %s", k)
		}
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&b, " AND %s = ?", k)
		args = append(args, keys[k])
	}
	return b.String(), args, nil
}

// ClassBalance returns record and flow counts per label; empty topology means all.
func (q *clickhouseQuerier) ClassBalance(ctx context.Context, topology string, until time.Time) ([]ClassCount, error) {
	query, args := classBalanceQuery(topology, until)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var counts []ClassCount
	for rows.Next() {
		var c ClassCount
		if err := rows.Scan(&c.Topology, &c.Label, &c.Records, &c.Flows); err != nil {
			return nil, fmt.Errorf("failed to scan class balance: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// TraceFlow returns the lifecycle of the flow matching keys.
func (q *clickhouseQuerier) TraceFlow(ctx context.Context, topology string, keys map[string]string) (*FlowLifecycle, error) {
	query, args, err := traceFlowQuery(topology, keys)
	if err != nil {
		return nil, err
	}

	var (
		result   FlowLifecycle
		positive uint8
	)
	row := q.conn.QueryRow(ctx, query, args...)
	if err := row.Scan(&result.FirstSeen, &result.LastSeen, &result.Samples, &result.PeakPackets, &result.PeakBytes, &positive); err != nil {
		return nil, fmt.Errorf("failed to scan flow lifecycle: %w", err)
	}
	result.Positive = positive == 1
	return &result, nil
}

func (q *clickhouseQuerier) Close() error {
	return q.conn.Close()
}
