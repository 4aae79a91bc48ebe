// Package program defines the normalized program record: the persistent
// configuration half of a managed program, kept separate from its runtime
// state (registry.Entry owns that half).
package program

import (
	"fmt"
	"strings"
)

// AutoRestart is the restart policy tagged union. The historical
// boolean-or-string overload ("autorestart: true|false|unexpected") is
// rejected at the config layer in favor of this explicit variant.
type AutoRestart int

const (
	AutoRestartNever AutoRestart = iota
	AutoRestartAlways
	AutoRestartUnexpected
)

func (a AutoRestart) String() string {
	switch a {
	case AutoRestartAlways:
		return "always"
	case AutoRestartUnexpected:
		return "on-unexpected"
	default:
		return "never"
	}
}

// ParseAutoRestart accepts the YAML surface forms "never"/"false",
// "always"/"true", "unexpected"/"on-unexpected".
func ParseAutoRestart(v string) (AutoRestart, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "never", "false":
		return AutoRestartNever, nil
	case "always", "true":
		return AutoRestartAlways, nil
	case "unexpected", "on-unexpected":
		return AutoRestartUnexpected, nil
	default:
		return AutoRestartNever, fmt.Errorf("taskmasterd: unknown autorestart value %q", v)
	}
}

// OutputSpec describes where a child's stdout or stderr is routed.
type OutputSpec struct {
	Discard bool
	Path    string
	// Rotation is optional; zero value means plain append, matching the
	// default behavior spec.md describes. When set, the file sink rotates
	// via lumberjack instead of appending forever.
	Rotation RotationSpec
}

// RotationSpec mirrors the subset of lumberjack.Logger fields exposed to
// program declarations.
type RotationSpec struct {
	Enabled    bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Spec is the normalized, persistent configuration of a program. Two
// Specs are interchangeable for reload purposes iff Signature() matches.
type Spec struct {
	Name         string
	Cmd          string
	NumProcs     int
	AutoStart    bool
	AutoRestart  AutoRestart
	ExitCodes    map[int]struct{}
	StartTime    int // seconds
	StartRetries int
	StopSignal   string
	StopTime     int // seconds
	Stdout       OutputSpec
	Stderr       OutputSpec
	Env          map[string]string
	WorkingDir   string
	UmaskSet     bool
	Umask        int
	User         string
	Group        string
	Console      bool
}

// Default returns a Spec preloaded with the defaults from spec.md §4.1,
// with Name and Cmd left for the caller to fill in.
func Default() Spec {
	return Spec{
		NumProcs:     1,
		AutoStart:    false,
		AutoRestart:  AutoRestartNever,
		ExitCodes:    map[int]struct{}{0: {}},
		StartTime:    0,
		StartRetries: 0,
		StopSignal:   "TERM",
		StopTime:     10,
		Env:          map[string]string{},
	}
}

// Signature is the subset of Spec compared during reload to decide
// whether a program's running children must be replaced (spec.md §4.5).
type Signature struct {
	Cmd          string
	NumProcs     int
	AutoRestart  AutoRestart
	ExitCodes    string // sorted, comma-joined for stable equality
	StartTime    int
	StartRetries int
	StopSignal   string
	StopTime     int
	Stdout       OutputSpec
	Stderr       OutputSpec
	Env          string // sorted KEY=VALUE, newline-joined
	WorkingDir   string
	UmaskSet     bool
	Umask        int
	User         string
	Group        string
	Console      bool
}

func (s Spec) Signature() Signature {
	return Signature{
		Cmd:          s.Cmd,
		NumProcs:     s.NumProcs,
		AutoRestart:  s.AutoRestart,
		ExitCodes:    exitCodesKey(s.ExitCodes),
		StartTime:    s.StartTime,
		StartRetries: s.StartRetries,
		StopSignal:   s.StopSignal,
		StopTime:     s.StopTime,
		Stdout:       s.Stdout,
		Stderr:       s.Stderr,
		Env:          envKey(s.Env),
		WorkingDir:   s.WorkingDir,
		UmaskSet:     s.UmaskSet,
		Umask:        s.Umask,
		User:         s.User,
		Group:        s.Group,
		Console:      s.Console,
	}
}

func exitCodesKey(codes map[int]struct{}) string {
	if len(codes) == 0 {
		return ""
	}
	ints := make([]int, 0, len(codes))
	for c := range codes {
		ints = append(ints, c)
	}
	// simple insertion sort; exit code sets are always tiny
	for i := 1; i < len(ints); i++ {
		for j := i; j > 0 && ints[j-1] > ints[j]; j-- {
			ints[j-1], ints[j] = ints[j], ints[j-1]
		}
	}
	var b strings.Builder
	for i, c := range ints {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%d", c)
	}
	return b.String()
}

func envKey(env map[string]string) string {
	if len(env) == 0 {
		return ""
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(env[k])
		b.WriteByte('\n')
	}
	return b.String()
}

// IsExpected reports whether exitCode is in the program's expected set.
func (s Spec) IsExpected(exitCode int) bool {
	_, ok := s.ExitCodes[exitCode]
	return ok
}

// ShouldRestart applies the static policy decision from spec.md §4.4 step 3,
// independent of the early-exit and retry-budget rules applied afterwards.
func (s Spec) ShouldRestart(exitCode int) bool {
	switch s.AutoRestart {
	case AutoRestartAlways:
		return true
	case AutoRestartUnexpected:
		return !s.IsExpected(exitCode)
	default:
		return false
	}
}
