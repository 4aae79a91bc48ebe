package alert

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// PostgresHistorySink is a write-only audit fan-out (SPEC_FULL.md §10/§11):
// the daemon never reads it back, so it does not reintroduce spec.md
// §1's "persistence of historical process state" non-goal. Grounded in
// the teacher's internal/history sinks and internal/store/postgresql.go,
// using github.com/jackc/pgx/v5 directly (not database/sql) as the
// teacher does.
type PostgresHistorySink struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresHistorySink(ctx context.Context, cfg config.PostgresHistoryConfig) (*PostgresHistorySink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: connecting postgres history sink: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "taskmaster_events"
	}
	s := &PostgresHistorySink{pool: pool, table: table}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		program TEXT NOT NULL,
		instance INT NOT NULL,
		pid INT NOT NULL,
		kind TEXT NOT NULL,
		line TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL
	)`, table)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskmasterd: preparing postgres history table: %w", err)
	}
	return s, nil
}

func (s *PostgresHistorySink) Send(ctx context.Context, line string, evt Event) error {
	q := fmt.Sprintf(`INSERT INTO %s (program, instance, pid, kind, line, occurred_at) VALUES ($1,$2,$3,$4,$5,$6)`, s.table)
	_, err := s.pool.Exec(ctx, q, evt.Program, evt.Instance, evt.PID, evt.Kind.String(), line, evt.Timestamp)
	return err
}

func (s *PostgresHistorySink) Close() error {
	s.pool.Close()
	return nil
}
