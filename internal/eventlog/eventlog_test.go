package eventlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/alert"
)

func TestOpenTruncatesOnStartup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmasterd.log")
	require.NoError(t, os.WriteFile(path, []byte("stale\ncontent\n"), 0o644))

	l, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Empty(t, b)
}

func TestSendAppendsLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskmasterd.log")

	l, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, l.Send(context.Background(), "line one", alert.Event{}))
	require.NoError(t, l.Send(context.Background(), "line two", alert.Event{}))
	require.NoError(t, l.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "line one\nline two\n", string(b))
}
