package alert

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatLineIncludesPIDAndInstance(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	line := FormatLine(Event{Kind: Started, Program: "web", Instance: 2, PID: 4242, Timestamp: ts})
	require.Equal(t, "▶ [2026-01-02 03:04:05] [web:2] [PID:4242] Started", line)
}

func TestFormatLineOmitsPIDWhenZero(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	line := FormatLine(Event{Kind: Failed, Program: "web", Timestamp: ts})
	require.Equal(t, "✖ [2026-01-02 03:04:05] [web] Failed", line)
}

func TestFanoutEmitsToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	f := NewFanout(a, b)
	f.Emit(context.Background(), Event{Kind: Stopped, Program: "x"})
	require.Len(t, a.lines, 1)
	require.Len(t, b.lines, 1)
}

func TestFanoutReplaceClosesOldSinks(t *testing.T) {
	old := &recordingSink{}
	f := NewFanout(old)
	f.Replace(nil)
	require.True(t, old.closed)
}

type recordingSink struct {
	lines  []string
	closed bool
}

func (s *recordingSink) Send(_ context.Context, line string, _ Event) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}
