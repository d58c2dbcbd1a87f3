// Package metrics exposes Prometheus collectors for RPC traffic on a channel.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RPC groups the collectors. A nil *RPC is valid and records nothing.
type RPC struct {
	calls      *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	errors     *prometheus.CounterVec
	settled    *prometheus.CounterVec
	pending    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*RPC, error) {
	m := &RPC{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geonb",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Outbound calls issued to the remote peer.",
		}, []string{"method"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geonb",
			Subsystem: "rpc",
			Name:      "dispatches_total",
			Help:      "Inbound requests dispatched to local procedures.",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geonb",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Protocol errors returned to the remote peer, by code.",
		}, []string{"code"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "geonb",
			Subsystem: "rpc",
			Name:      "responses_total",
			Help:      "Inbound responses, by outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "geonb",
			Subsystem: "rpc",
			Name:      "pending_calls",
			Help:      "Outbound calls awaiting a response.",
		}),
	}
	for _, c := range []prometheus.Collector{m.calls, m.dispatches, m.errors, m.settled, m.pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *RPC) Call(method string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(method).Inc()
	m.pending.Inc()
}

func (m *RPC) Dispatch(method string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(method).Inc()
}

func (m *RPC) Error(code int) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(strconv.Itoa(code)).Inc()
}

// Settled records one resolved response; outcome is fulfilled, rejected or unknown.
func (m *RPC) Settled(outcome string) {
	if m == nil {
		return
	}
	m.settled.WithLabelValues(outcome).Inc()
	if outcome != "unknown" {
		m.pending.Dec()
	}
}

// Abandoned records a call whose send failed after it was counted.
func (m *RPC) Abandoned() {
	if m == nil {
		return
	}
	m.pending.Dec()
}
