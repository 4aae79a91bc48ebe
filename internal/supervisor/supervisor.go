// Package supervisor implements the Lifecycle Controller (spec.md §4.3):
// the public start/stop/restart/reconcile operations that sit above the
// Program Registry and the Process Launcher, grounded in the teacher's
// internal/process/manager.go Start/Stop/Restart trio.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/instance"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/program"
	"github.com/taskmasterd/taskmasterd/internal/registry"
)

// Sentinel errors matching spec.md §7's named outcomes. Callers (the
// Control Server) map these to protocol-level failure messages.
var (
	ErrNotFound       = fmt.Errorf("program not found")
	ErrAlreadyRunning = fmt.Errorf("program already running")
	ErrNotRunning     = fmt.Errorf("program not running")
)

// settleDelay is the short pause restart() inserts between stop and
// start, giving the OS time to release the old instances' resources
// (ports, pid slots) before new children bind them.
const settleDelay = 200 * time.Millisecond

// Supervisor owns the registry, launcher and alert fanout and exposes
// the lifecycle verbs the Control Server, Reload Coordinator and daemon
// entrypoint call into. All
// public methods take the registry lock for their critical section and
// release it before any blocking I/O, per spec.md §5.
type Supervisor struct {
	Registry *registry.Registry
	Launcher *launcher.Launcher
	Alerts   *alert.Fanout
}

func New(reg *registry.Registry, l *launcher.Launcher, alerts *alert.Fanout) *Supervisor {
	return &Supervisor{Registry: reg, Launcher: l, Alerts: alerts}
}

// Start implements spec.md §4.3 start(name).
func (s *Supervisor) Start(ctx context.Context, name string) error {
	s.Registry.Lock()
	e := s.Registry.Get(name)
	if e == nil {
		s.Registry.Unlock()
		return ErrNotFound
	}
	if e.Status == registry.Started {
		s.Registry.Unlock()
		return ErrAlreadyRunning
	}
	spec := e.Spec
	s.Registry.Unlock()

	return s.spawnMissing(ctx, name, spec)
}

// spawnMissing spawns instances for every slot 1..numprocs not already
// occupied, used by both Start and reconcile.
func (s *Supervisor) spawnMissing(ctx context.Context, name string, spec program.Spec) error {
	for idx := 1; idx <= spec.NumProcs; idx++ {
		s.Registry.Lock()
		e := s.Registry.Get(name)
		if e == nil {
			s.Registry.Unlock()
			return ErrNotFound
		}
		if _, ok := e.Instances[idx]; ok {
			s.Registry.Unlock()
			continue
		}
		s.Registry.Unlock()

		in, err := s.Launcher.Spawn(spec, idx)
		s.Registry.Lock()
		e = s.Registry.Get(name)
		if e == nil {
			s.Registry.Unlock()
			if in != nil {
				in.CloseDescriptors()
			}
			return ErrNotFound
		}
		if err != nil {
			e.Failed = true
			e.Recompute()
			s.Registry.Unlock()
			s.Alerts.Emit(ctx, alert.Event{Kind: alert.Failed, Program: name, Instance: idx, Timestamp: time.Now(), Detail: err.Error()})
			return err
		}
		e.Instances[idx] = in
		e.Recompute()
		s.Registry.Unlock()
		s.Alerts.Emit(ctx, alert.Event{Kind: alert.Started, Program: name, Instance: idx, PID: in.PID, Timestamp: time.Now()})
	}
	return nil
}

// Stop implements spec.md §4.3 stop(name): signal, wait up to stoptime,
// force-kill, close descriptors, remove from the registry, clear retry
// counters (spec.md §4.4 tie-break: "a manual stop clears retry
// counters").
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	s.Registry.Lock()
	e := s.Registry.Get(name)
	if e == nil {
		s.Registry.Unlock()
		return ErrNotFound
	}
	if e.Status != registry.Started {
		s.Registry.Unlock()
		return ErrNotRunning
	}
	spec := e.Spec
	instances := make(map[int]*instance.Instance, len(e.Instances))
	for idx, in := range e.Instances {
		instances[idx] = in
	}
	s.Registry.Unlock()

	for idx, in := range instances {
		s.stopOne(ctx, name, spec, idx, in)
	}

	s.Registry.Lock()
	if e := s.Registry.Get(name); e != nil {
		e.Instances = map[int]*instance.Instance{}
		e.Failed = false
		e.Recompute()
	}
	s.Registry.Unlock()
	return nil
}

// stopOne sends stopsignal, waits up to stoptime for the instance to
// exit, then force-kills. It does not hold the registry lock while
// blocking on the wait, per spec.md §5.
func (s *Supervisor) stopOne(ctx context.Context, name string, spec program.Spec, idx int, in *instance.Instance) {
	in.SetStopRequested(true)
	sig, err := program.ResolveSignal(spec.StopSignal)
	if err == nil && in.Cmd != nil && in.Cmd.Process != nil {
		_ = in.Cmd.Process.Signal(sig)
	}

	deadline := time.Now().Add(time.Duration(spec.StopTime) * time.Second)
	for time.Now().Before(deadline) {
		if !in.Alive() {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if in.Alive() && in.Cmd != nil && in.Cmd.Process != nil {
		_ = in.Cmd.Process.Kill()
	}
	if in.Cmd != nil {
		_, _ = in.Cmd.Process.Wait()
	}
	in.CloseDescriptors()
	s.Alerts.Emit(ctx, alert.Event{Kind: alert.Stopped, Program: name, Instance: idx, PID: in.PID, Timestamp: time.Now()})
}

// Restart implements spec.md §4.3 restart(name): stop then, after a
// short settle delay, start. The two halves are not atomic against a
// concurrent reload; a stop failure aborts the restart.
func (s *Supervisor) Restart(ctx context.Context, name string) error {
	if err := s.Stop(ctx, name); err != nil {
		return err
	}
	time.Sleep(settleDelay)
	return s.Start(ctx, name)
}

// Reconcile spawns instances for every slot 1..numprocs that has no
// instance record. Neither the Monitor nor the Reload Coordinator calls
// it; the Monitor respawns reaped instances itself.
func (s *Supervisor) Reconcile(ctx context.Context, name string) error {
	s.Registry.Lock()
	e := s.Registry.Get(name)
	if e == nil {
		s.Registry.Unlock()
		return ErrNotFound
	}
	spec := e.Spec
	s.Registry.Unlock()
	return s.spawnMissing(ctx, name, spec)
}
