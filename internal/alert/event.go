// Package alert implements the Alerting Sink (spec.md §4.7): fan-out of
// every lifecycle log line to configured transports. Grounded in the
// teacher's internal/history sinks (one-way, write-only fan-out) and
// TaskMaster.py's log_info (event symbols and line format).
package alert

import (
	"fmt"
	"time"
)

// EventKind is one of the four lifecycle symbols from spec.md §6.
type EventKind int

const (
	Started EventKind = iota
	Stopped
	Restarting
	Failed
)

func (k EventKind) Symbol() string {
	switch k {
	case Started:
		return "▶"
	case Stopped:
		return "▪"
	case Restarting:
		return "↻"
	case Failed:
		return "✖"
	default:
		return "?"
	}
}

func (k EventKind) String() string {
	switch k {
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	case Restarting:
		return "Restarting"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event describes a single lifecycle transition.
type Event struct {
	Kind      EventKind
	Program   string
	Instance  int // 0 means "no specific instance" (program-level events)
	PID       int // 0 means unknown/not applicable
	Timestamp time.Time
	Detail    string // appended to the rendered message, may be empty
}

// FormatLine renders the event into the exact text form spec.md §6
// defines: `<symbol> [YYYY-MM-DD HH:MM:SS] [<prog>[:<instance>]]
// [PID:<pid>] <event>`.
func FormatLine(e Event) string {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	name := e.Program
	if e.Instance > 0 {
		name = fmt.Sprintf("%s:%d", e.Program, e.Instance)
	}
	msg := e.Kind.String()
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	if e.PID > 0 {
		return fmt.Sprintf("%s [%s] [%s] [PID:%d] %s", e.Kind.Symbol(), ts.Format("2006-01-02 15:04:05"), name, e.PID, msg)
	}
	return fmt.Sprintf("%s [%s] [%s] %s", e.Kind.Symbol(), ts.Format("2006-01-02 15:04:05"), name, msg)
}
