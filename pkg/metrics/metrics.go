// Package metrics exposes Prometheus instrumentation for the IPC server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autodebug"

// Collector holds all IPC metrics on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	FramesTotal       prometheus.Counter
	FrameBytes        prometheus.Histogram
	DispatchesTotal   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	BindDuration      prometheus.Histogram
	Uptime            prometheus.GaugeFunc

	startTime time.Time
}

// NewCollector creates a collector with Go runtime and process metrics registered
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	c := &Collector{
		registry:  reg,
		startTime: time.Now(),

		ConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ipc_connections_active",
				Help:      "Number of open IPC connections",
			},
		),
		ConnectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_connections_total",
				Help:      "Total number of accepted IPC connections",
			},
		),
		FramesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_frames_total",
				Help:      "Total number of newline-delimited frames received",
			},
		),
		FrameBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_frame_size_bytes",
				Help:      "Size of received frames in bytes",
				Buckets:   []float64{16, 64, 256, 1024, 4096, 16384, 65536, 262144},
			},
		),
		DispatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_dispatches_total",
				Help:      "Total number of launch requests forwarded, by request type",
			},
			[]string{"type"},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_errors_total",
				Help:      "Total number of IPC errors, by kind",
			},
			[]string{"kind"},
		),
		BindDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_bind_duration_seconds",
				Help:      "Time spent resolving and binding the IPC handle",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
		),
	}

	c.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since the collector was created",
		},
		func() float64 { return time.Since(c.startTime).Seconds() },
	)

	return c
}

// Registry returns the registry backing the collector
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler returns an HTTP handler serving the collector's registry
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records an accepted connection
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.ConnectionsTotal.Inc()
	c.ConnectionsActive.Inc()
}

// ConnectionClosed records a connection leaving the live set
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.ConnectionsActive.Dec()
}

// FrameReceived records one complete frame of n bytes
func (c *Collector) FrameReceived(n int) {
	if c == nil {
		return
	}
	c.FramesTotal.Inc()
	c.FrameBytes.Observe(float64(n))
}

// Dispatched records a request handed to the launcher
func (c *Collector) Dispatched(requestType string) {
	if c == nil {
		return
	}
	if requestType == "" {
		requestType = "unknown"
	}
	c.DispatchesTotal.WithLabelValues(requestType).Inc()
}

// RecordError records an error of the given kind (bind, parse, transport)
func (c *Collector) RecordError(kind string) {
	if c == nil {
		return
	}
	c.ErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveBind records how long handle resolution and binding took
func (c *Collector) ObserveBind(d time.Duration) {
	if c == nil {
		return
	}
	c.BindDuration.Observe(d.Seconds())
}
