package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soocke/pull-bot-go/domain/pull"
)

// Metrics holds the Prometheus collectors of a session and implements
// pull.Observer.
type Metrics struct {
	registry *prometheus.Registry

	pulls           prometheus.Counter
	cycles          prometheus.Counter
	captureFailures prometheus.Counter
	rare            prometheus.Histogram
	matchDuration   *prometheus.HistogramVec
	clicks          *prometheus.CounterVec
	state           atomic.Int64

	server *http.Server
}

var _ pull.Observer = (*Metrics)(nil)

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.pulls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullbot_pulls_total",
		Help: "Total confirmed pulls",
	})
	m.cycles = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullbot_cycles_total",
		Help: "Total completed draw/evaluate cycles",
	})
	m.captureFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pullbot_capture_failures_total",
		Help: "Total failed surface captures",
	})
	m.rare = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pullbot_rare_outcomes",
		Help:    "Rare outcomes counted per cycle",
		Buckets: prometheus.LinearBuckets(0, 1, 11),
	})
	m.matchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pullbot_match_duration_seconds",
		Help:    "Match engine latency per step",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"step"})
	m.clicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pullbot_clicks_total",
		Help: "Clicks dispatched per step",
	}, []string{"step"})

	m.registry.MustRegister(m.pulls, m.cycles, m.captureFailures, m.rare, m.matchDuration, m.clicks)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "pullbot_state",
			Help: "Current pull state machine state",
		},
		func() float64 { return float64(m.state.Load()) },
	))
	return m
}

// StateChanged records the current machine state.
func (m *Metrics) StateChanged(_, to pull.State) { m.state.Store(int64(to)) }

// Pulled counts a confirmed pull.
func (m *Metrics) Pulled() { m.pulls.Inc() }

// CycleCompleted counts a cycle and observes its rare-outcome count.
func (m *Metrics) CycleCompleted(rare int) {
	m.cycles.Inc()
	m.rare.Observe(float64(rare))
}

// Matched observes match latency for step.
func (m *Metrics) Matched(step string, d time.Duration) {
	m.matchDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Clicked counts a click for step.
func (m *Metrics) Clicked(step string) { m.clicks.WithLabelValues(step).Inc() }

// CaptureFailed counts a failed capture.
func (m *Metrics) CaptureFailed() { m.captureFailures.Inc() }

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr in the background. It returns once the
// listener is bound.
func (m *Metrics) StartServer(addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && logger != nil {
			logger.Error("metrics server", "error", err)
		}
	}()
	if logger != nil {
		logger.Info("metrics listening", "addr", ln.Addr().String())
	}
	return nil
}

// Shutdown stops the metrics server, if running.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
