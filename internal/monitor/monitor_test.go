package monitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/program"
	"github.com/taskmasterd/taskmasterd/internal/registry"
)

func newTestMonitor(t *testing.T) (*Monitor, *registry.Registry, *launcher.Launcher) {
	t.Helper()
	reg := registry.New()
	lau := launcher.New(os.Environ())
	m := New(reg, lau, alert.NewFanout())
	return m, reg, lau
}

func spawnInto(t *testing.T, reg *registry.Registry, lau *launcher.Launcher, spec program.Spec) {
	t.Helper()
	reg.Lock()
	reg.Put(spec)
	reg.Unlock()

	in, err := lau.Spawn(spec, 1)
	require.NoError(t, err)

	reg.Lock()
	e := reg.Get(spec.Name)
	e.Instances[1] = in
	e.Recompute()
	reg.Unlock()
}

// TestEarlyExitRetryBudget exercises spec.md §4.4 step 4: an exit before
// starttime elapses is a failure regardless of exit code, and is
// retried up to startretries times before the program is pinned Failed.
func TestEarlyExitRetryBudget(t *testing.T) {
	m, reg, lau := newTestMonitor(t)
	ctx := context.Background()

	spec := program.Default()
	spec.Name = "quickdie"
	spec.Cmd = "/bin/true"
	spec.AutoRestart = program.AutoRestartAlways
	spec.StartTime = 5
	spec.StartRetries = 2
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}
	spawnInto(t, reg, lau, spec)

	waitExit(t, reg, "quickdie")
	m.tickProgram(ctx, "quickdie")
	reg.Lock()
	require.Equal(t, 1, reg.Get("quickdie").Instances[1].Retries)
	require.False(t, reg.Get("quickdie").Failed)
	reg.Unlock()

	waitExit(t, reg, "quickdie")
	m.tickProgram(ctx, "quickdie")
	reg.Lock()
	require.Equal(t, 2, reg.Get("quickdie").Instances[1].Retries)
	require.False(t, reg.Get("quickdie").Failed)
	reg.Unlock()

	waitExit(t, reg, "quickdie")
	m.tickProgram(ctx, "quickdie")
	reg.Lock()
	e := reg.Get("quickdie")
	require.True(t, e.Failed)
	require.Empty(t, e.Instances)
	reg.Unlock()
}

// TestUnexpectedExitRestart exercises the on-unexpected policy: a
// nonzero exit restarts up to startretries times, then fails.
func TestUnexpectedExitRestart(t *testing.T) {
	m, reg, lau := newTestMonitor(t)
	ctx := context.Background()

	spec := program.Default()
	spec.Name = "flaky"
	spec.Cmd = "/bin/sh -c 'exit 1'"
	spec.AutoRestart = program.AutoRestartUnexpected
	spec.ExitCodes = program.ParseExitCodes([]int{0})
	spec.StartRetries = 3
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}
	spawnInto(t, reg, lau, spec)

	for i := 0; i < 3; i++ {
		waitExit(t, reg, "flaky")
		m.tickProgram(ctx, "flaky")
		reg.Lock()
		require.False(t, reg.Get("flaky").Failed, "retry %d should not yet be failed", i+1)
		reg.Unlock()
	}

	waitExit(t, reg, "flaky")
	m.tickProgram(ctx, "flaky")
	reg.Lock()
	e := reg.Get("flaky")
	require.True(t, e.Failed)
	require.Equal(t, registry.Stopped, e.Status)
	reg.Unlock()
}

// TestExpectedExitUnderOnUnexpectedDoesNotRestart exercises the tie-break
// in spec.md §4.4: an expected exit under on-unexpected is not restarted
// and does not consume retry budget.
func TestExpectedExitUnderOnUnexpectedDoesNotRestart(t *testing.T) {
	m, reg, lau := newTestMonitor(t)
	ctx := context.Background()

	spec := program.Default()
	spec.Name = "clean"
	spec.Cmd = "/bin/true"
	spec.AutoRestart = program.AutoRestartUnexpected
	spec.ExitCodes = program.ParseExitCodes([]int{0})
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}
	spawnInto(t, reg, lau, spec)

	waitExit(t, reg, "clean")
	m.tickProgram(ctx, "clean")

	reg.Lock()
	e := reg.Get("clean")
	require.False(t, e.Failed)
	require.Empty(t, e.Instances)
	require.Equal(t, registry.Stopped, e.Status)
	reg.Unlock()
}

func waitExit(t *testing.T, reg *registry.Registry, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reg.Lock()
		e := reg.Get(name)
		var in = e.Instances[1]
		reg.Unlock()
		if in == nil || !in.Alive() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("instance for %s never exited", name)
}
