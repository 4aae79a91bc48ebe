package supervisor

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/program"
	"github.com/taskmasterd/taskmasterd/internal/registry"
)

func newTestSupervisor() (*Supervisor, *registry.Registry) {
	reg := registry.New()
	lau := launcher.New(os.Environ())
	sup := New(reg, lau, alert.NewFanout())
	return sup, reg
}

func TestStartSpawnsNumprocsInstances(t *testing.T) {
	sup, reg := newTestSupervisor()
	ctx := context.Background()

	spec := program.Default()
	spec.Name = "sleeper"
	spec.Cmd = "/bin/sleep 5"
	spec.NumProcs = 2
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}

	reg.Lock()
	reg.Put(spec)
	reg.Unlock()

	require.NoError(t, sup.Start(ctx, "sleeper"))

	reg.Lock()
	e := reg.Get("sleeper")
	require.Equal(t, registry.Started, e.Status)
	require.Len(t, e.Instances, 2)
	reg.Unlock()

	require.ErrorIs(t, sup.Start(ctx, "sleeper"), ErrAlreadyRunning)

	require.NoError(t, sup.Stop(ctx, "sleeper"))

	reg.Lock()
	e = reg.Get("sleeper")
	require.Equal(t, registry.Stopped, e.Status)
	require.Empty(t, e.Instances)
	reg.Unlock()
}

func TestStartUnknownProgram(t *testing.T) {
	sup, _ := newTestSupervisor()
	require.ErrorIs(t, sup.Start(context.Background(), "nope"), ErrNotFound)
}

func TestStopNotRunning(t *testing.T) {
	sup, reg := newTestSupervisor()
	spec := program.Default()
	spec.Name = "idle"
	spec.Cmd = "/bin/true"
	reg.Lock()
	reg.Put(spec)
	reg.Unlock()

	require.ErrorIs(t, sup.Stop(context.Background(), "idle"), ErrNotRunning)
}

func TestStopEscalatesToForceKill(t *testing.T) {
	sup, reg := newTestSupervisor()
	ctx := context.Background()

	spec := program.Default()
	spec.Name = "stubborn"
	spec.Cmd = "/bin/sh -c 'trap \"\" TERM; sleep 100'"
	spec.StopSignal = "TERM"
	spec.StopTime = 1
	spec.Stdout = program.OutputSpec{Discard: true}
	spec.Stderr = program.OutputSpec{Discard: true}

	reg.Lock()
	reg.Put(spec)
	reg.Unlock()

	require.NoError(t, sup.Start(ctx, "stubborn"))
	require.NoError(t, sup.Stop(ctx, "stubborn"))

	reg.Lock()
	e := reg.Get("stubborn")
	require.Equal(t, registry.Stopped, e.Status)
	reg.Unlock()
}
