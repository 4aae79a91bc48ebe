// Package eventlog implements the operator-facing "Log file" from
// spec.md §6: an append-only UTF-8 text sink that the daemon truncates
// on startup. It is the first entry in the Alerting Sink fan-out list
// (SPEC_FULL.md §10).
package eventlog

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/taskmasterd/taskmasterd/internal/alert"
)

// Logger is an alert.Sink that appends one line per lifecycle event to
// a file, truncated when first opened (spec.md §6: "The daemon
// truncates the log on startup").
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("taskmasterd: opening event log %s: %w", path, err)
	}
	return &Logger{file: f}, nil
}

func (l *Logger) Send(_ context.Context, line string, _ alert.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := fmt.Fprintln(l.file, line)
	return err
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
