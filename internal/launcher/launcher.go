// Package launcher implements the Process Launcher (spec.md §4.2): given
// a normalized program.Spec and an instance index, it spawns a child with
// the correct environment, working directory, umask, user/group,
// output/pty redirection, and records the resulting instance.Instance.
package launcher

import (
	"fmt"
	"sort"
	"time"

	"github.com/taskmasterd/taskmasterd/internal/instance"
	"github.com/taskmasterd/taskmasterd/internal/program"
)

// SpawnError wraps a failure to create a child process (spec.md §7).
type SpawnError struct {
	Program string
	Index   int
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("taskmasterd: spawn error for %s[%d]: %v", e.Program, e.Index, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Launcher spawns children on behalf of the Lifecycle Controller and
// Monitor. It is stateless beyond the daemon's base environment.
type Launcher struct {
	BaseEnv []string
}

func New(baseEnv []string) *Launcher {
	return &Launcher{BaseEnv: baseEnv}
}

// Spawn implements spec.md §4.2 steps 1-5.
func (l *Launcher) Spawn(spec program.Spec, index int) (*instance.Instance, error) {
	cmd := spec.BuildCommand()
	cmd.Env = mergeEnv(l.BaseEnv, spec.Env)
	if spec.WorkingDir != "" {
		cmd.Dir = spec.WorkingDir
	}

	if err := configureCredential(cmd, spec); err != nil {
		return nil, &SpawnError{Program: spec.Name, Index: index, Err: err}
	}

	in := &instance.Instance{Index: index, State: instance.Spawning}

	stdout, stderr, ptyMaster, err := wireOutput(cmd, spec)
	if err != nil {
		return nil, &SpawnError{Program: spec.Name, Index: index, Err: err}
	}
	in.StdoutCloser, in.StderrCloser, in.PTYMaster = stdout, stderr, ptyMaster

	configureProcessGroup(cmd)

	if err := startWithUmask(cmd, spec); err != nil {
		in.CloseDescriptors()
		return nil, &SpawnError{Program: spec.Name, Index: index, Err: err}
	}

	in.Cmd = cmd
	in.PID = cmd.Process.Pid
	in.StartedAt = time.Now()
	in.State = instance.Running
	return in, nil
}

// mergeEnv overlays the program's env map on the daemon's base
// environment, matching spec.md §4.2 step 2.
func mergeEnv(base []string, overlay map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range base {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				merged[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overlay {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+merged[k])
	}
	return out
}
