// Package metrics owns the server's Prometheus registry and the collectors
// fed by the cart, stress, alerts and HTTP layers.
package metrics

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the collectors. All metrics are prefixed with "senseease_".
type Metrics struct {
	reg *prometheus.Registry

	CartMutations     *prometheus.CounterVec   // {op, result}
	EventsRecorded    *prometheus.CounterVec   // {type}
	EventLogEvictions prometheus.Counter
	StressEvaluations *prometheus.CounterVec   // {level}
	StressScore       prometheus.Histogram
	CalmingChanges    *prometheus.CounterVec   // {state}
	HTTPRequests      *prometheus.CounterVec   // {method, code}
	HTTPDuration      *prometheus.HistogramVec // {method}
	StreamClients     prometheus.Gauge
	EventsPruned      prometheus.Counter
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		CartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senseease_cart_mutations_total",
			Help: "Cart mutations by operation and result",
		}, []string{"op", "result"}),
		EventsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senseease_events_recorded_total",
			Help: "Interaction events recorded by type",
		}, []string{"type"}),
		EventLogEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "senseease_event_log_evictions_total",
			Help: "Events dropped from full session logs",
		}),
		StressEvaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senseease_stress_evaluations_total",
			Help: "Stress evaluations by resulting level",
		}, []string{"level"}),
		StressScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "senseease_stress_score",
			Help:    "Distribution of evaluated stress scores",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}),
		CalmingChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senseease_calming_transitions_total",
			Help: "Calming alerts fired or resolved",
		}, []string{"state"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "senseease_http_requests_total",
			Help: "HTTP requests by method and status code",
		}, []string{"method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "senseease_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "senseease_stream_clients",
			Help: "Connected live stress stream clients",
		}),
		EventsPruned: f.NewCounter(prometheus.CounterOpts{
			Name: "senseease_events_pruned_total",
			Help: "Persisted events removed by retention pruning",
		}),
	}
}

// Result returns the result label for err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the exposition format negotiated from the
// request's Accept header.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mfs, err := m.reg.Gather()
		if err != nil {
			slog.Warn("metrics: gather failed", "err", err)
		}
		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range mfs {
			if err := enc.Encode(mf); err != nil {
				slog.Debug("metrics: encode failed", "family", mf.GetName(), "err", err)
				return
			}
		}
		if c, ok := enc.(expfmt.Closer); ok {
			c.Close() //nolint:errcheck
		}
	})
}

// Totals returns the summed value of every senseease counter and gauge
// family, keyed by family name.
func (m *Metrics) Totals() (map[string]float64, error) {
	mfs, err := m.reg.Gather()
	if err != nil {
		return nil, fmt.Errorf("metrics: gather: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range mfs {
		name := mf.GetName()
		if len(name) < 10 || name[:10] != "senseease_" {
			continue
		}
		switch mf.GetType() {
		case dto.MetricType_COUNTER, dto.MetricType_GAUGE:
			out[name] = sumFamily(mf)
		}
	}
	return out, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
func sumFamily(mf *dto.MetricFamily) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

// --- HTTP instrumentation ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: underlying writer cannot hijack")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Instrument counts and times every request served by next.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
