package alert

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// ClickHouseHistorySink mirrors PostgresHistorySink for operators who
// prefer an analytics-oriented column store for the audit trail,
// grounded in the teacher's internal/history/clickhouse.go.
type ClickHouseHistorySink struct {
	conn  clickhouse.Conn
	table string
}

func NewClickHouseHistorySink(ctx context.Context, cfg config.ClickHouseHistoryConfig) (*ClickHouseHistorySink, error) {
	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: parsing clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: connecting clickhouse history sink: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "taskmaster_events"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		program String,
		instance Int32,
		pid Int32,
		kind String,
		line String,
		occurred_at DateTime
	) ENGINE = MergeTree() ORDER BY occurred_at`, table)
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("taskmasterd: preparing clickhouse history table: %w", err)
	}
	return &ClickHouseHistorySink{conn: conn, table: table}, nil
}

func (s *ClickHouseHistorySink) Send(ctx context.Context, line string, evt Event) error {
	q := fmt.Sprintf(`INSERT INTO %s (program, instance, pid, kind, line, occurred_at) VALUES (?,?,?,?,?,?)`, s.table)
	return s.conn.Exec(ctx, q, evt.Program, evt.Instance, evt.PID, evt.Kind.String(), line, evt.Timestamp)
}

func (s *ClickHouseHistorySink) Close() error { return s.conn.Close() }
