package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/config"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/registry"
	"github.com/taskmasterd/taskmasterd/internal/supervisor"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "taskmasterd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReloadAddsAndRemoves(t *testing.T) {
	dir := t.TempDir()
	reg := registry.New()
	sup := supervisor.New(reg, launcher.New(os.Environ()), alert.NewFanout())
	var lastAlert config.AlertConfig
	rc := New(reg, sup, func(c config.AlertConfig) { lastAlert = c })
	ctx := context.Background()

	path := writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/sleep 100
    autostart: true
    stdout: discard
    stderr: discard
`)
	changed, err := rc.Apply(ctx, path)
	require.NoError(t, err)
	require.True(t, changed)

	reg.Lock()
	aEntry := reg.Get("a")
	require.Equal(t, registry.Started, aEntry.Status)
	aPID := aEntry.Instances[1].PID
	reg.Unlock()

	path = writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/sleep 100
    autostart: true
    stdout: discard
    stderr: discard
  b:
    cmd: /bin/sleep 50
    autostart: true
    stdout: discard
    stderr: discard
`)
	changed, err = rc.Apply(ctx, path)
	require.NoError(t, err)
	require.True(t, changed)

	reg.Lock()
	require.Equal(t, aPID, reg.Get("a").Instances[1].PID, "unchanged signature must preserve the running pid")
	require.Equal(t, registry.Started, reg.Get("b").Status)
	reg.Unlock()

	// Reloading the identical document again is a no-op.
	changed, err = rc.Apply(ctx, path)
	require.NoError(t, err)
	require.False(t, changed)

	path = writeConfig(t, dir, `
programs:
  a:
    cmd: /bin/sleep 100
    autostart: true
    stdout: discard
    stderr: discard
`)
	changed, err = rc.Apply(ctx, path)
	require.NoError(t, err)
	require.True(t, changed)

	reg.Lock()
	require.Nil(t, reg.Get("b"))
	reg.Unlock()

	require.NoError(t, sup.Stop(ctx, "a"))
	_ = lastAlert
}
