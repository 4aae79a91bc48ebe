// Package config implements the Config Loader (spec.md §4.1): it turns a
// YAML document into normalized program.Spec records and a global
// AlertConfig, applying defaults, .env population, and environment
// variable expansion. Grounded in the teacher's internal/config/config.go,
// using github.com/spf13/viper + github.com/go-viper/mapstructure/v2 for
// decoding, per SPEC_FULL.md §10.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/taskmasterd/taskmasterd/internal/program"
)

// Document is the fully normalized result of loading a configuration file.
type Document struct {
	Programs map[string]program.Spec
	Alerts   AlertConfig
}

type rawProgram struct {
	Cmd          string            `mapstructure:"cmd"`
	NumProcs     int               `mapstructure:"numprocs"`
	AutoStart    bool              `mapstructure:"autostart"`
	AutoRestart  string            `mapstructure:"autorestart"`
	ExitCodes    interface{}       `mapstructure:"exitcodes"`
	StartTime    int               `mapstructure:"starttime"`
	StartRetries int               `mapstructure:"startretries"`
	StopSignal   string            `mapstructure:"stopsignal"`
	StopTime     int               `mapstructure:"stoptime"`
	Stdout       string            `mapstructure:"stdout"`
	Stderr       string            `mapstructure:"stderr"`
	Env          map[string]string `mapstructure:"env"`
	WorkingDir   string            `mapstructure:"workingdir"`
	Umask        string            `mapstructure:"umask"`
	User         string            `mapstructure:"user"`
	Group        string            `mapstructure:"group"`
	Console      bool              `mapstructure:"console"`
}

type rawDocument struct {
	Programs map[string]rawProgram `mapstructure:"programs"`
	Alerts   AlertConfig           `mapstructure:"alerts"`
}

// Load parses the YAML document at path into a normalized Document. It
// first loads a .env file from the same directory (if present) to
// populate unset environment variables (spec.md §4.1), then expands
// $NAME/${NAME} references in string fields after parsing.
func Load(path string) (*Document, error) {
	if env, err := loadEnvFile(filepath.Join(filepath.Dir(path), ".env")); err == nil {
		applyDotEnv(env)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errf("", "reading %s: %v", path, err)
	}

	var raw rawDocument
	if err := v.Unmarshal(&raw); err != nil {
		return nil, errf("", "parsing %s: %v", path, err)
	}

	doc := &Document{Programs: make(map[string]program.Spec, len(raw.Programs)), Alerts: raw.Alerts}
	for name, rp := range raw.Programs {
		sp, err := normalizeProgram(name, rp)
		if err != nil {
			return nil, err
		}
		doc.Programs[name] = sp
	}
	return doc, nil
}

func normalizeProgram(name string, rp rawProgram) (program.Spec, error) {
	sp := program.Default()
	sp.Name = name
	sp.Cmd = expandEnv(rp.Cmd)
	if sp.Cmd == "" {
		return sp, errf(name, "missing required field \"cmd\"")
	}

	sp.NumProcs = rp.NumProcs
	if sp.NumProcs == 0 {
		sp.NumProcs = 1
	}
	if sp.NumProcs < 1 {
		return sp, errf(name, "numprocs must be >= 1, got %d", sp.NumProcs)
	}

	sp.AutoStart = rp.AutoStart

	ar, err := program.ParseAutoRestart(rp.AutoRestart)
	if err != nil {
		return sp, errf(name, "%v", err)
	}
	sp.AutoRestart = ar

	codes, err := normalizeExitCodes(rp.ExitCodes)
	if err != nil {
		return sp, errf(name, "%v", err)
	}
	sp.ExitCodes = codes

	sp.StartTime = rp.StartTime
	sp.StartRetries = rp.StartRetries

	stopSignal := rp.StopSignal
	if stopSignal == "" {
		stopSignal = "TERM"
	}
	if _, err := program.ResolveSignal(stopSignal); err != nil {
		return sp, errf(name, "%v", err)
	}
	sp.StopSignal = strings.ToUpper(stopSignal)

	sp.StopTime = rp.StopTime
	if sp.StopTime == 0 {
		sp.StopTime = 10
	}

	sp.Stdout = normalizeOutput(expandEnv(rp.Stdout))
	sp.Stderr = normalizeOutput(expandEnv(rp.Stderr))

	sp.Env = make(map[string]string, len(rp.Env))
	for k, val := range rp.Env {
		sp.Env[k] = expandEnv(val)
	}

	sp.WorkingDir = expandEnv(rp.WorkingDir)

	umaskVal, set, err := program.ParseUmask(rp.Umask)
	if err != nil {
		return sp, errf(name, "%v", err)
	}
	sp.UmaskSet, sp.Umask = set, umaskVal

	sp.User = expandEnv(rp.User)
	sp.Group = expandEnv(rp.Group)
	sp.Console = rp.Console
	if sp.Console && !PtySupported {
		return sp, errf(name, "console: true requires pseudo-terminal support, unavailable on this build")
	}

	return sp, nil
}

func normalizeOutput(v string) program.OutputSpec {
	if v == "" || strings.EqualFold(v, "discard") {
		return program.OutputSpec{Discard: true}
	}
	return program.OutputSpec{Path: v}
}

func normalizeExitCodes(v interface{}) (map[int]struct{}, error) {
	switch t := v.(type) {
	case nil:
		return program.ParseExitCodes(nil), nil
	case int:
		return program.ParseExitCodes([]int{t}), nil
	case []interface{}:
		out := make([]int, 0, len(t))
		for _, item := range t {
			n, err := toInt(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return program.ParseExitCodes(out), nil
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, fmt.Errorf("invalid exitcodes value %v", v)
		}
		return program.ParseExitCodes([]int{n}), nil
	}
}

func toInt(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("not a number: %v", v)
	}
}
