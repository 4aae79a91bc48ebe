// Command taskmasterd is the supervisor daemon (spec.md §1): it loads a
// configuration file, autostarts programs, runs the Monitor and Control
// Server, and reacts to SIGHUP/SIGTERM/SIGINT until asked to quit.
// Grounded in the teacher's cmd/provisr/main.go cobra root layout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/taskmasterd/taskmasterd/internal/alert"
	"github.com/taskmasterd/taskmasterd/internal/config"
	"github.com/taskmasterd/taskmasterd/internal/control"
	"github.com/taskmasterd/taskmasterd/internal/eventlog"
	"github.com/taskmasterd/taskmasterd/internal/launcher"
	"github.com/taskmasterd/taskmasterd/internal/logging"
	"github.com/taskmasterd/taskmasterd/internal/metrics"
	"github.com/taskmasterd/taskmasterd/internal/monitor"
	"github.com/taskmasterd/taskmasterd/internal/registry"
	"github.com/taskmasterd/taskmasterd/internal/reload"
	"github.com/taskmasterd/taskmasterd/internal/supervisor"
)

const (
	exitOK          = 0
	exitConfigError = 1
	exitBindFailed  = 2
)

func main() {
	var (
		configPath    string
		socketPath    string
		eventLogPath  string
		metricsListen string
		foreground    bool
	)

	root := &cobra.Command{
		Use:   "taskmasterd",
		Short: "Process supervisor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runOptions{
				configPath:    configPath,
				socketPath:    socketPath,
				eventLogPath:  eventLogPath,
				metricsListen: metricsListen,
				foreground:    foreground,
			})
		},
	}
	root.Flags().StringVar(&configPath, "config", "taskmasterd.yaml", "path to the YAML configuration file")
	root.Flags().StringVar(&socketPath, "socket", defaultSocketPath(), "path to the control socket (unix) or address (tcp fallback)")
	root.Flags().StringVar(&eventLogPath, "logfile", "taskmasterd.log", "path to the append-only event log")
	root.Flags().StringVar(&metricsListen, "metrics-listen", "", "address to serve Prometheus /metrics on (disabled when empty)")
	root.Flags().BoolVar(&foreground, "foreground", true, "allow colored diagnostic logs when stderr is a terminal (the daemon never daemonizes itself)")

	if err := root.Execute(); err != nil {
		var exitErr *exitCodeError
		if ok := asExitCodeError(err, &exitErr); ok {
			fmt.Fprintln(os.Stderr, exitErr.Err)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

type exitCodeError struct {
	Code int
	Err  error
}

func (e *exitCodeError) Error() string { return e.Err.Error() }
func (e *exitCodeError) Unwrap() error { return e.Err }

func asExitCodeError(err error, target **exitCodeError) bool {
	for err != nil {
		if e, ok := err.(*exitCodeError); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func defaultSocketPath() string {
	if v := os.Getenv("TASKMASTER_SOCKET"); v != "" {
		return v
	}
	return "/tmp/taskmaster.sock"
}

type runOptions struct {
	configPath    string
	socketPath    string
	eventLogPath  string
	metricsListen string
	foreground    bool
}

func run(ctx context.Context, opts runOptions) error {
	isTerminal := false
	if fi, err := os.Stderr.Stat(); err == nil && opts.foreground {
		isTerminal = fi.Mode()&os.ModeCharDevice != 0
	}
	slog.SetDefault(slog.New(logging.NewColorTextHandler(os.Stderr, nil, isTerminal)))

	if uid, gid, dropped, err := launcher.DropPrivileges(os.Getenv("TASKMASTER_RUN_AS_USER"), os.Getenv("TASKMASTER_RUN_AS_GROUP")); err != nil {
		return &exitCodeError{Code: exitConfigError, Err: err}
	} else if dropped {
		slog.Info("dropped privileges before serving", "uid", uid, "gid", gid)
	}

	doc, err := config.Load(opts.configPath)
	if err != nil {
		return &exitCodeError{Code: exitConfigError, Err: err}
	}

	evLog, err := eventlog.Open(opts.eventLogPath)
	if err != nil {
		return &exitCodeError{Code: exitConfigError, Err: err}
	}
	defer func() { _ = evLog.Close() }()

	sinks := buildSinks(ctx, evLog, doc.Alerts)
	fanout := alert.NewFanout(sinks...)
	defer fanout.Close()

	reg := registry.New()
	lau := launcher.New(os.Environ())
	sup := supervisor.New(reg, lau, fanout)
	mon := monitor.New(reg, lau, fanout)
	rc := reload.New(reg, sup, func(alertCfg config.AlertConfig) {
		fanout.Replace(buildSinks(ctx, evLog, alertCfg))
	})

	for name, spec := range doc.Programs {
		reg.Lock()
		reg.Put(spec)
		reg.Unlock()
		if spec.AutoStart {
			if err := sup.Start(ctx, name); err != nil {
				slog.Error("autostart failed", "program", name, "error", err)
			}
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go mon.Run(ctx)

	srv := control.New(reg, sup, rc, opts.configPath, opts.socketPath)
	serverErrCh := make(chan error, 1)
	go func() { serverErrCh <- srv.ListenAndServe(ctx) }()

	if opts.metricsListen != "" {
		promReg := prometheus.NewRegistry()
		collector := metrics.New(reg)
		if err := collector.Register(promReg); err != nil {
			return &exitCodeError{Code: exitBindFailed, Err: err}
		}
		go collector.Run(ctx)
		go func() {
			if err := metrics.Serve(ctx, opts.metricsListen, promReg); err != nil {
				slog.Error("metrics server", "error", err)
			}
		}()
	}

	sigCh, stopSignals := notifySignals()
	defer stopSignals()

	for {
		select {
		case sig := <-sigCh:
			if isReloadSignal(sig) {
				slog.Info("reload requested via signal", "signal", sig)
				if _, err := rc.Apply(ctx, opts.configPath); err != nil {
					slog.Error("reload failed", "error", err)
				}
			} else {
				slog.Info("shutdown requested", "signal", sig)
				shutdownAll(ctx, reg, sup)
				cancel()
				return nil
			}
		case <-srv.QuitRequested():
			slog.Info("shutdown requested via control quit")
			shutdownAll(ctx, reg, sup)
			cancel()
			return nil
		case err := <-serverErrCh:
			if err != nil {
				return &exitCodeError{Code: exitBindFailed, Err: err}
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// shutdownAll stops every known program in turn before daemon exit,
// per spec.md §5 ("termination and interrupt request daemon shutdown,
// which stops every program in turn before exit").
func shutdownAll(ctx context.Context, reg *registry.Registry, sup *supervisor.Supervisor) {
	reg.Lock()
	names := reg.Names()
	reg.Unlock()
	for _, name := range names {
		if err := sup.Stop(ctx, name); err != nil {
			slog.Debug("shutdown stop", "program", name, "error", err)
		}
	}
}

// persistentSink wraps a sink the daemon owns for its whole lifetime
// (the event log) so that alert.Fanout.Replace/Close, which close every
// sink they hold, never close it out from under a concurrent reload;
// the daemon closes the real logger itself on shutdown.
type persistentSink struct{ alert.Sink }

func (persistentSink) Close() error { return nil }

func buildSinks(ctx context.Context, evLog *eventlog.Logger, cfg config.AlertConfig) []alert.Sink {
	sinks := []alert.Sink{persistentSink{evLog}}

	if cfg.Email.Enabled {
		sinks = append(sinks, alert.NewEmailSink(cfg.Email))
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, alert.NewWebhookSink(cfg.Webhook))
	}
	if cfg.Syslog.Enabled {
		if s, err := alert.NewSyslogSink(cfg.Syslog); err == nil {
			sinks = append(sinks, s)
		} else {
			slog.Error("syslog sink unavailable", "error", err)
		}
	}
	if cfg.History.Postgres.Enabled {
		if s, err := alert.NewPostgresHistorySink(ctx, cfg.History.Postgres); err == nil {
			sinks = append(sinks, s)
		} else {
			slog.Error("postgres history sink unavailable", "error", err)
		}
	}
	if cfg.History.ClickHouse.Enabled {
		if s, err := alert.NewClickHouseHistorySink(ctx, cfg.History.ClickHouse); err == nil {
			sinks = append(sinks, s)
		} else {
			slog.Error("clickhouse history sink unavailable", "error", err)
		}
	}
	if cfg.History.SQLite.Enabled {
		if s, err := alert.NewSQLiteHistorySink(cfg.History.SQLite); err == nil {
			sinks = append(sinks, s)
		} else {
			slog.Error("sqlite history sink unavailable", "error", err)
		}
	}
	return sinks
}
