// Package metrics collects and exposes Prometheus metrics for foremon.
package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all foremon-specific Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	TaskRunTotal     *prometheus.CounterVec
	TaskCrashTotal   *prometheus.CounterVec
	EventTotal       *prometheus.CounterVec
	SuppressedTotal  prometheus.Counter
	ReloadTotal      prometheus.Counter
	ReloadErrorTotal prometheus.Counter
	Tasks            prometheus.Gauge
	BuildInfo        *prometheus.GaugeVec
}

// New creates and registers all foremon metrics.
func New() *Collector {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	c := &Collector{
		registry: reg,

		TaskRunTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foremon_task_runs_total",
				Help: "Total number of script batch runs per task.",
			},
			[]string{"alias"},
		),

		TaskCrashTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foremon_task_crashes_total",
				Help: "Total number of unexpected script exits per task.",
			},
			[]string{"alias"},
		),

		EventTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "foremon_fs_events_total",
				Help: "Total number of filesystem events queued per task.",
			},
			[]string{"alias"},
		),

		SuppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "foremon_suppressed_events_total",
				Help: "Total number of events coalesced away by debouncing.",
			},
		),

		ReloadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "foremon_config_reloads_total",
				Help: "Total number of config reloads.",
			},
		),

		ReloadErrorTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "foremon_config_reload_errors_total",
				Help: "Total number of failed config reloads.",
			},
		),

		Tasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "foremon_tasks",
				Help: "Number of tasks registered with the monitor.",
			},
		),

		BuildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "foremon_info",
				Help: "Build information about foremon.",
			},
			[]string{"version", "go_version"},
		),
	}

	reg.MustRegister(
		c.TaskRunTotal,
		c.TaskCrashTotal,
		c.EventTotal,
		c.SuppressedTotal,
		c.ReloadTotal,
		c.ReloadErrorTotal,
		c.Tasks,
		c.BuildInfo,
	)

	return c
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the listener fails or the
// process exits. It returns the bound address for tests.
func (c *Collector) Serve(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	go func() { _ = http.Serve(ln, mux) }()
	return ln.Addr().String(), nil
}

// SetBuildInfo sets the constant build info gauge.
func (c *Collector) SetBuildInfo(version, goVersion string) {
	c.BuildInfo.WithLabelValues(version, goVersion).Set(1)
}
