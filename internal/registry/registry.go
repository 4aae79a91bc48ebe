// Package registry implements the Program Registry (spec.md §4.3): the
// single mutex-guarded source of truth mapping program name to its
// normalized record and current instance set.
package registry

import (
	"sort"
	"sync"

	"github.com/taskmasterd/taskmasterd/internal/instance"
	"github.com/taskmasterd/taskmasterd/internal/program"
)

// Status is the derived program runtime state (spec.md §3).
type Status int

const (
	Created Status = iota
	Started
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Started:
		return "STARTED"
	default:
		return "STOPPED"
	}
}

// Entry is the registry's per-program record: configuration plus runtime
// state, kept in two halves per spec.md §9's "dynamic field bags" note.
type Entry struct {
	Spec      program.Spec
	Status    Status
	Instances map[int]*instance.Instance // keyed by 1..numprocs
	// Failed tracks whether the program has exhausted
	// startretries and is pinned in STOPPED until manual intervention
	// (spec.md §4.3 "Failed" outcome).
	Failed bool
}

func newEntry(spec program.Spec) *Entry {
	return &Entry{Spec: spec, Status: Created, Instances: map[int]*instance.Instance{}}
}

// Recompute derives Status from the instance set (spec.md §3: "recomputed
// after every transition").
func (e *Entry) Recompute() {
	if len(e.Instances) > 0 {
		e.Status = Started
		return
	}
	if e.Status == Created {
		return
	}
	e.Status = Stopped
}

func (e *Entry) AliveCount() int {
	n := 0
	for _, in := range e.Instances {
		if in.Alive() {
			n++
		}
	}
	return n
}

// Registry is the mutex-guarded map from program name to Entry. All
// mutation paths (Lifecycle Controller, Monitor, Reload Coordinator)
// take Lock for their critical section and release it before blocking
// on external I/O, per spec.md §5.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func New() *Registry {
	return &Registry{entries: map[string]*Entry{}}
}

// Lock/Unlock expose the single mutex directly to callers (Lifecycle
// Controller, Monitor, Reload Coordinator) that need multi-step critical
// sections spanning several Registry method calls.
func (r *Registry) Lock()   { r.mu.Lock() }
func (r *Registry) Unlock() { r.mu.Unlock() }

// Get returns the entry for name, or nil if unknown. Callers must hold
// the registry lock.
func (r *Registry) Get(name string) *Entry {
	return r.entries[name]
}

// Put inserts or replaces a program's configuration record, preserving
// no runtime state — callers that want to keep instances across a
// replace must move them explicitly. Callers must hold the registry lock.
func (r *Registry) Put(spec program.Spec) *Entry {
	e := newEntry(spec)
	r.entries[spec.Name] = e
	return e
}

// Delete removes a program entirely. Callers must hold the registry lock.
func (r *Registry) Delete(name string) {
	delete(r.entries, name)
}

// Names returns all known program names, sorted for deterministic
// status listing. Callers must hold the registry lock.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered programs. Callers must hold the
// registry lock.
func (r *Registry) Len() int { return len(r.entries) }
