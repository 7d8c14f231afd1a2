// Package metrics exports device activity as Prometheus metrics.
package metrics

import (
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmartinez0925/mychardev/device"
)

const namespace = "mychardev"

var _ device.Collector = (*Prometheus)(nil)

// Prometheus is a device.Collector with its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	writes     *prometheus.CounterVec // by result
	writeBytes prometheus.Counter
	reads      *prometheus.CounterVec // by result
	readBytes  prometheus.Counter
	polls      *prometheus.CounterVec // by readiness
	resets     prometheus.Counter
	sessions   prometheus.Gauge
	waiters    prometheus.Gauge
}

// NewPrometheus creates the collector; name is attached to every metric as
// the "device" label.
func NewPrometheus(name string) *Prometheus {
	p := &Prometheus{registry: prometheus.NewRegistry()}
	labels := prometheus.Labels{"device": name}

	p.writes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "writes_total",
		Help:        "Write calls by result.",
		ConstLabels: labels,
	}, []string{"result"})
	p.writeBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "write_bytes_total",
		Help:        "Bytes committed to the buffer.",
		ConstLabels: labels,
	})
	p.reads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "reads_total",
		Help:        "Read calls by result.",
		ConstLabels: labels,
	}, []string{"result"})
	p.readBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "read_bytes_total",
		Help:        "Bytes copied out of the buffer.",
		ConstLabels: labels,
	})
	p.polls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "polls_total",
		Help:        "Poll calls by reported readiness.",
		ConstLabels: labels,
	}, []string{"readable"})
	p.resets = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        "resets_total",
		Help:        "Buffer resets through the control channel.",
		ConstLabels: labels,
	})
	p.sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "open_sessions",
		Help:        "Sessions currently open.",
		ConstLabels: labels,
	})
	p.waiters = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "waiters",
		Help:        "Callers queued for the readable flag.",
		ConstLabels: labels,
	})

	p.registry.MustRegister(p.writes, p.writeBytes, p.reads, p.readBytes,
		p.polls, p.resets, p.sessions, p.waiters)
	return p
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *Prometheus) ObserveWrite(bytes int, err error) {
	p.writes.WithLabelValues(result(err)).Inc()
	if err == nil {
		p.writeBytes.Add(float64(bytes))
	}
}

func (p *Prometheus) ObserveRead(bytes int, err error) {
	p.reads.WithLabelValues(result(err)).Inc()
	if err == nil {
		p.readBytes.Add(float64(bytes))
	}
}

func (p *Prometheus) ObservePoll(readable bool) {
	if readable {
		p.polls.WithLabelValues("true").Inc()
		return
	}
	p.polls.WithLabelValues("false").Inc()
}

func (p *Prometheus) ObserveReset() { p.resets.Inc() }

func (p *Prometheus) ObserveSessions(delta int) { p.sessions.Add(float64(delta)) }

func (p *Prometheus) ObserveWaiters(delta int) { p.waiters.Add(float64(delta)) }

// result turns an operation error into a label value.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, io.EOF):
		return "eof"
	default:
		return device.Errno(err)
	}
}
