// Package reload implements the Reload Coordinator (spec.md §4.5):
// diffing a freshly loaded config.Document against the live registry
// and applying the minimal set of start/stop/replace operations,
// grounded in the teacher's internal/config reload path adapted to
// the program.Spec.Signature() equality check this module introduces.
package reload

import (
	"context"

	"github.com/taskmasterd/taskmasterd/internal/config"
	"github.com/taskmasterd/taskmasterd/internal/registry"
	"github.com/taskmasterd/taskmasterd/internal/supervisor"
)

// Coordinator applies config.Document diffs to a registry.Registry via
// a supervisor.Supervisor, and keeps the live AlertConfig up to date.
type Coordinator struct {
	Registry   *registry.Registry
	Supervisor *supervisor.Supervisor
	// OnAlertConfig is invoked with the new config.AlertConfig every
	// reload, wholesale-replacing the previous one (spec.md §4.5 "the
	// alert record is replaced wholesale").
	OnAlertConfig func(config.AlertConfig)
}

func New(reg *registry.Registry, sup *supervisor.Supervisor, onAlertConfig func(config.AlertConfig)) *Coordinator {
	return &Coordinator{Registry: reg, Supervisor: sup, OnAlertConfig: onAlertConfig}
}

// Apply loads path and diffs it against the registry, implementing the
// three-branch algorithm from spec.md §4.5. It reports whether any
// add/remove/replace occurred.
func (c *Coordinator) Apply(ctx context.Context, path string) (bool, error) {
	doc, err := config.Load(path)
	if err != nil {
		return false, err
	}

	changed := false

	c.Registry.Lock()
	existing := c.Registry.Names()
	c.Registry.Unlock()

	seen := make(map[string]bool, len(doc.Programs))
	for name, spec := range doc.Programs {
		seen[name] = true

		c.Registry.Lock()
		e := c.Registry.Get(name)
		if e == nil {
			c.Registry.Put(spec)
			c.Registry.Unlock()
			changed = true
			if spec.AutoStart {
				_ = c.Supervisor.Start(ctx, name)
			}
			continue
		}

		if e.Spec.Signature() == spec.Signature() {
			// Non-semantic fields only differ; update in place,
			// preserving the running instance set untouched.
			e.Spec = spec
			c.Registry.Unlock()
			continue
		}

		c.Registry.Unlock()
		changed = true
		_ = c.Supervisor.Stop(ctx, name)
		c.Registry.Lock()
		c.Registry.Put(spec)
		c.Registry.Unlock()
		if spec.AutoStart {
			_ = c.Supervisor.Start(ctx, name)
		}
	}

	for _, name := range existing {
		if seen[name] {
			continue
		}
		changed = true
		_ = c.Supervisor.Stop(ctx, name)
		c.Registry.Lock()
		c.Registry.Delete(name)
		c.Registry.Unlock()
	}

	if c.OnAlertConfig != nil {
		c.OnAlertConfig(doc.Alerts)
	}

	return changed, nil
}
