// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/poller"
	"github.com/tamzrod/sensorbox/internal/status"
)

const namespace = "sensorbox"

// Metrics holds the collector instrumentation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	transactions *prometheus.CounterVec
	attempts     *prometheus.HistogramVec

	flushes     *prometheus.CounterVec
	flushedRows prometheus.Counter
	lostRows    prometheus.Counter

	cycles         prometheus.Counter
	health         prometheus.Gauge
	lastErrorCode  prometheus.Gauge
	secondsInError prometheus.Gauge
	missing        prometheus.Gauge

	registerValue *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Register transactions by function code and result.",
		}, []string{"function", "result"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_attempts",
			Help:      "Attempts spent per transaction.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}, []string{"function"}),

		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_flushes_total",
			Help:      "Accumulation window flushes by raw write result.",
		}, []string{"result"}),
		flushedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_rows_written_total",
			Help:      "Rows written to the raw destination.",
		}),
		lostRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_rows_lost_total",
			Help:      "Rows dropped after a failed raw write.",
		}),

		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Collector cycles run.",
		}),
		health: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health",
			Help:      "Collector health: 0 unknown, 1 ok, 2 error, 3 degraded.",
		}),
		lastErrorCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_error_code",
			Help:      "Last error code; Modbus exception codes pass through.",
		}),
		secondsInError: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seconds_in_error",
			Help:      "Seconds since the current non-OK streak started.",
		}),
		missing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "missing_registers",
			Help:      "Registers without a valid answer in the last cycle.",
		}),

		registerValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "register_value",
			Help:      "Last decimal value read per register.",
		}, []string{"register"}),
	}

	m.reg.MustRegister(
		m.transactions,
		m.attempts,
		m.flushes,
		m.flushedRows,
		m.lostRows,
		m.cycles,
		m.health,
		m.lastErrorCode,
		m.secondsInError,
		m.missing,
		m.registerValue,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveTransaction implements rtu.Observer.
func (m *Metrics) ObserveTransaction(function uint8, attempts int, err error) {
	if m == nil {
		return
	}
	fc := fmt.Sprintf("0x%02X", function)
	m.transactions.WithLabelValues(fc, result(err)).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(fc).Observe(float64(attempts))
	}
}

// ObserveFlush implements pipeline.Observer.
func (m *Metrics) ObserveFlush(rows int, err error) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(result(err)).Inc()
	if err != nil {
		m.lostRows.Add(float64(rows))
		return
	}
	m.flushedRows.Add(float64(rows))
}

// ObserveStatus exports a health snapshot.
func (m *Metrics) ObserveStatus(s status.Snapshot) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.health.Set(float64(s.Health))
	m.lastErrorCode.Set(float64(s.LastErrorCode))
	m.secondsInError.Set(float64(s.SecondsInError))
	m.missing.Set(float64(s.Missing))
}

// ObserveSample exports the decimal values of s. Hex and missing values
// are skipped; the previous value stays visible until overwritten.
func (m *Metrics) ObserveSample(s poller.Sample) {
	if m == nil {
		return
	}
	for i, v := range s.Values {
		if i >= len(s.Names) {
			break
		}
		n := v.BigInt()
		if n == nil {
			continue
		}
		f, _ := n.Float64()
		m.registerValue.WithLabelValues(s.Names[i]).Set(f)
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("listen", addr).Msg("metrics listener started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}
