package alert

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/taskmasterd/taskmasterd/internal/config"
)

// SQLiteHistorySink is the lightweight, single-file audit sink for
// operators who do not want to run a database server; grounded in the
// teacher's internal/store/sqlite.go and modernc.org/sqlite's pure-Go
// database/sql driver (no cgo dependency).
type SQLiteHistorySink struct {
	db    *sql.DB
	table string
}

func NewSQLiteHistorySink(cfg config.SQLiteHistoryConfig) (*SQLiteHistorySink, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: opening sqlite history sink: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "taskmaster_events"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		program TEXT NOT NULL,
		instance INTEGER NOT NULL,
		pid INTEGER NOT NULL,
		kind TEXT NOT NULL,
		line TEXT NOT NULL,
		occurred_at DATETIME NOT NULL
	)`, table)
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("taskmasterd: preparing sqlite history table: %w", err)
	}
	return &SQLiteHistorySink{db: db, table: table}, nil
}

func (s *SQLiteHistorySink) Send(ctx context.Context, line string, evt Event) error {
	q := fmt.Sprintf(`INSERT INTO %s (program, instance, pid, kind, line, occurred_at) VALUES (?,?,?,?,?,?)`, s.table)
	_, err := s.db.ExecContext(ctx, q, evt.Program, evt.Instance, evt.PID, evt.Kind.String(), line, evt.Timestamp)
	return err
}

func (s *SQLiteHistorySink) Close() error { return s.db.Close() }
