// Package monitor implements the Monitor (spec.md §4.4): a background
// task that reaps terminated children and applies the restart policy,
// grounded in the teacher's internal/process/monitor.go polling loop
// but restructured so the early-exit rule (step 4) and the restart
// budget rule (step 5) never double-count a single reaped exit — the
// bug spec.md §9 calls out in the original TaskMaster.py Monitor().
package monitor

import (
	"context"
	"time"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/instance"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/program"
	"github.com/taskmasterd/taskmasterd/internal/registry"
)

// DefaultInterval is the polling cadence mentioned in spec.md §4.4 ("a
// polling cadence of a few seconds").
const DefaultInterval = 2 * time.Second

type Monitor struct {
	Registry *registry.Registry
	Launcher *launcher.Launcher
	Alerts   *alert.Fanout
	Interval time.Duration
}

func New(reg *registry.Registry, l *launcher.Launcher, alerts *alert.Fanout) *Monitor {
	return &Monitor{Registry: reg, Launcher: l, Alerts: alerts, Interval: DefaultInterval}
}

// Run blocks, ticking at m.Interval, until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick scans every program's instances once, per spec.md §4.4's 7 steps.
func (m *Monitor) tick(ctx context.Context) {
	m.Registry.Lock()
	names := m.Registry.Names()
	m.Registry.Unlock()

	for _, name := range names {
		m.tickProgram(ctx, name)
	}
}

func (m *Monitor) tickProgram(ctx context.Context, name string) {
	m.Registry.Lock()
	e := m.Registry.Get(name)
	if e == nil {
		m.Registry.Unlock()
		return
	}
	spec := e.Spec
	candidates := make(map[int]*instance.Instance, len(e.Instances))
	for idx, in := range e.Instances {
		// Instances being stopped manually are owned by the
		// Lifecycle Controller for the duration of that call; the
		// Monitor leaves them alone to avoid a double-reap race.
		if in.StopRequested() {
			continue
		}
		candidates[idx] = in
	}
	m.Registry.Unlock()

	changed := false
	for idx, in := range candidates {
		if in.Alive() {
			continue
		}
		m.reap(ctx, name, spec, idx, in)
		changed = true
	}

	if changed {
		m.Registry.Lock()
		if e := m.Registry.Get(name); e != nil {
			e.Recompute()
			if e.Status != registry.Started {
				// No alive instance pseudo-terminal masters should
				// remain open once the program drops out of STARTED.
				for _, in := range e.Instances {
					in.CloseDescriptors()
				}
			}
		}
		m.Registry.Unlock()
	}
}

// reap implements spec.md §4.4 steps 1-7 for one already-dead instance.
func (m *Monitor) reap(ctx context.Context, name string, spec program.Spec, idx int, in *instance.Instance) {
	var exitCode int
	if in.Cmd != nil && in.Cmd.Process != nil {
		state, err := in.Cmd.Process.Wait()
		if err == nil && state != nil {
			exitCode = state.ExitCode()
		}
	}
	runTime := time.Since(in.StartedAt)

	// Step 3: static policy decision.
	shouldRestart := spec.ShouldRestart(exitCode)

	retries := in.Retries
	retryIncremented := false
	failed := false

	// Step 4: early-exit rule. Runs before, and independently of, step 5.
	earlyExit := spec.StartTime > 0 && runTime < time.Duration(spec.StartTime)*time.Second
	if earlyExit {
		retries++
		retryIncremented = true
		if retries <= spec.StartRetries {
			shouldRestart = true
		} else {
			shouldRestart = false
			failed = true
		}
	}

	// Step 5: restart budget rule. Only increments if step 4 did not
	// already account for this exit, preventing the double-count the
	// original implementation was prone to.
	if shouldRestart && spec.StartRetries > 0 && !retryIncremented {
		retries++
		if retries > spec.StartRetries {
			shouldRestart = false
			failed = true
		}
	}

	// Step 6.
	in.CloseDescriptors()

	m.Registry.Lock()
	e := m.Registry.Get(name)
	if e == nil {
		m.Registry.Unlock()
		return
	}
	if failed {
		e.Failed = true
	}
	m.Registry.Unlock()

	// Step 7.
	if shouldRestart {
		fresh, err := m.Launcher.Spawn(spec, idx)
		m.Registry.Lock()
		e := m.Registry.Get(name)
		if e == nil {
			m.Registry.Unlock()
			if fresh != nil {
				fresh.CloseDescriptors()
			}
			return
		}
		if err != nil {
			e.Failed = true
			delete(e.Instances, idx)
			m.Registry.Unlock()
			m.Alerts.Emit(ctx, alert.Event{Kind: alert.Failed, Program: name, Instance: idx, Timestamp: time.Now(), Detail: err.Error()})
			return
		}
		fresh.Retries = retries
		e.Instances[idx] = fresh
		m.Registry.Unlock()
		m.Alerts.Emit(ctx, alert.Event{Kind: alert.Restarting, Program: name, Instance: idx, PID: in.PID, Timestamp: time.Now()})
		m.Alerts.Emit(ctx, alert.Event{Kind: alert.Started, Program: name, Instance: idx, PID: fresh.PID, Timestamp: time.Now()})
		return
	}

	m.Registry.Lock()
	if e := m.Registry.Get(name); e != nil {
		delete(e.Instances, idx)
	}
	m.Registry.Unlock()
	if failed {
		m.Alerts.Emit(ctx, alert.Event{Kind: alert.Failed, Program: name, Instance: idx, PID: in.PID, Timestamp: time.Now()})
	} else {
		m.Alerts.Emit(ctx, alert.Event{Kind: alert.Stopped, Program: name, Instance: idx, PID: in.PID, Timestamp: time.Now()})
	}
}
