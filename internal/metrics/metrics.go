// Package metrics exposes the daemon's Prometheus counters and gauges.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional recorder without nil checks at every call site.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "presencewatch"

// Poll results used as the "result" label of polls_total.
const (
	PollOK      = "ok"
	PollError   = "error"
	PollUnknown = "unknown"
)

// Metrics holds the daemon's collectors.
type Metrics struct {
	polls          *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	presenceState  prometheus.Gauge
	onlineSeconds  prometheus.Gauge
	persistFailure prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Presence polls by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Confirmed transitions by event kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by event kind, sink, and result.",
		}, []string{"kind", "sink", "result"}),
		presenceState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_state",
			Help:      "Last confirmed presence state (0 unknown, 1 online, 2 away, 3 offline).",
		}),
		onlineSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_online_seconds",
			Help:      "Online seconds accumulated in the current session.",
		}),
		persistFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed state file writes.",
		}),
	}
	reg.MustRegister(m.polls, m.transitions, m.notifications, m.presenceState, m.onlineSeconds, m.persistFailure)
	return m
}

// NewRegistry returns a registry with the Go runtime and process collectors
// plus the daemon's own metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, New(reg)
}

// Poll counts one poll with the given result.
func (m *Metrics) Poll(result string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
}

// Transition counts one confirmed transition.
func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// Notification counts one delivery attempt.
func (m *Metrics) Notification(kind, sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(kind, sink, result).Inc()
}

// Presence records the current state and session online time.
func (m *Metrics) Presence(state int, onlineSeconds float64) {
	if m == nil {
		return
	}
	m.presenceState.Set(float64(state))
	m.onlineSeconds.Set(onlineSeconds)
}

// PersistFailure counts one failed state write.
func (m *Metrics) PersistFailure() {
	if m == nil {
		return
	}
	m.persistFailure.Inc()
}

// ///////////////////////////////////////////////
// HTTP Endpoint
// ///////////////////////////////////////////////

// Handler returns the /metrics handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled. It returns an
// error only if the listener cannot be opened.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(g))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "error", err)
		}
	}()

	slog.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}
