// Package metrics implements the optional Prometheus surface described
// in SPEC_FULL.md §6/§10/§11: per-program instance-count and
// restart-count gauges/counters plus per-instance CPU/RSS sampling,
// served on a separate HTTP listener from the control socket. Grounded
// in the teacher's internal/metrics/process_metrics.go, narrowed to the
// fields this daemon's registry actually carries.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/taskmasterd/taskmasterd/internal/registry"
)

// Collector samples the registry on an interval and exposes the result
// as Prometheus collectors. It does not mutate registry state.
type Collector struct {
	Registry *registry.Registry
	Interval time.Duration

	aliveInstances *prometheus.GaugeVec
	failedPrograms *prometheus.GaugeVec
	retryCount     *prometheus.GaugeVec
	cpuPercent     *prometheus.GaugeVec
	rssBytes       *prometheus.GaugeVec
}

// DefaultInterval mirrors the Monitor's own polling cadence so sampled
// values never lag lifecycle transitions by more than one tick.
const DefaultInterval = 2 * time.Second

func New(reg *registry.Registry) *Collector {
	labels := []string{"program"}
	instanceLabels := []string{"program", "instance"}
	return &Collector{
		Registry: reg,
		Interval: DefaultInterval,
		aliveInstances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmasterd", Subsystem: "program", Name: "alive_instances",
			Help: "Number of currently alive instances for a program.",
		}, labels),
		failedPrograms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmasterd", Subsystem: "program", Name: "failed",
			Help: "1 if the program has exhausted its restart budget and is pinned STOPPED, else 0.",
		}, labels),
		retryCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmasterd", Subsystem: "instance", Name: "retries",
			Help: "Current retry counter for a program instance.",
		}, instanceLabels),
		cpuPercent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmasterd", Subsystem: "instance", Name: "cpu_percent",
			Help: "CPU usage percentage sampled from the OS for a program instance.",
		}, instanceLabels),
		rssBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskmasterd", Subsystem: "instance", Name: "rss_bytes",
			Help: "Resident set size sampled from the OS for a program instance.",
		}, instanceLabels),
	}
}

// Register attaches every collector to r, tolerating double-registration
// (harmless when called from tests that share a package-level registry).
func (c *Collector) Register(r prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.aliveInstances, c.failedPrograms, c.retryCount, c.cpuPercent, c.rssBytes} {
		if err := r.Register(col); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples the registry every Interval until ctx is canceled.
func (c *Collector) Run(ctx context.Context) {
	interval := c.Interval
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
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	c.Registry.Lock()
	names := c.Registry.Names()
	type instanceSnapshot struct {
		pid     int
		alive   bool
		retries int
	}
	type snapshot struct {
		alive, failed int
		instances     map[int]instanceSnapshot // index -> pid/retries
	}
	snaps := make(map[string]snapshot, len(names))
	for _, name := range names {
		e := c.Registry.Get(name)
		if e == nil {
			continue
		}
		s := snapshot{failed: boolToInt(e.Failed), instances: map[int]instanceSnapshot{}}
		for idx, in := range e.Instances {
			alive := in.Alive()
			s.instances[idx] = instanceSnapshot{pid: in.PID, alive: alive, retries: in.Retries}
			if alive {
				s.alive++
			}
		}
		snaps[name] = s
	}
	c.Registry.Unlock()

	for name, s := range snaps {
		c.aliveInstances.WithLabelValues(name).Set(float64(s.alive))
		c.failedPrograms.WithLabelValues(name).Set(float64(s.failed))
		for idx, inst := range s.instances {
			c.retryCount.WithLabelValues(name, indexLabel(idx)).Set(float64(inst.retries))
			if inst.alive {
				c.sampleProcess(name, idx, inst.pid)
			}
		}
	}
}

func (c *Collector) sampleProcess(program string, index, pid int) {
	instanceLabel := indexLabel(index)
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	if pct, err := proc.CPUPercent(); err == nil {
		c.cpuPercent.WithLabelValues(program, instanceLabel).Set(pct)
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		c.rssBytes.WithLabelValues(program, instanceLabel).Set(float64(mem.RSS))
	}
}

func indexLabel(index int) string {
	return strconv.Itoa(index)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Serve starts a plain HTTP server exposing /metrics on addr, per
// SPEC_FULL.md §6's "--metrics-listen ADDR" extension. It blocks until
// ctx is canceled or the listener fails.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics: shutdown", "error", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
