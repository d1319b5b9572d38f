package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scanCycles   *prometheus.HistogramVec
	evaluations  *prometheus.CounterVec
	setupEvents  *prometheus.CounterVec
	activeSetups *prometheus.GaugeVec
	fetches      *prometheus.HistogramVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		scanCycles: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swingscan_scan_cycle_seconds",
				Help:    "Duration of one full scan cycle per timeframe",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"timeframe"},
		),
		evaluations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingscan_evaluations_total",
				Help: "Total (symbol, timeframe) evaluations run",
			},
			[]string{"timeframe"},
		),
		setupEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingscan_setup_events_total",
				Help: "Total setup lifecycle events emitted",
			},
			[]string{"type", "state"},
		),
		activeSetups: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swingscan_active_setups",
				Help: "Live setup records by timeframe and state",
			},
			[]string{"timeframe", "state"},
		),
		fetches: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swingscan_fetch_duration_seconds",
				Help:    "Upstream fetch latency by request kind",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swingscan_errors_total",
				Help: "Total errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swingscan_last_price",
				Help: "Last seen price per symbol",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordScanCycle(tf string, seconds float64) {
	r.scanCycles.WithLabelValues(tf).Observe(seconds)
}

func (r *Recorder) RecordEvaluation(tf string) {
	r.evaluations.WithLabelValues(tf).Inc()
}

func (r *Recorder) RecordSetupEvent(evType, state string) {
	r.setupEvents.WithLabelValues(evType, state).Inc()
}

func (r *Recorder) RecordActiveSetups(tf, state string, n int) {
	r.activeSetups.WithLabelValues(tf, state).Set(float64(n))
}

func (r *Recorder) RecordFetch(kind string, seconds float64) {
	r.fetches.WithLabelValues(kind).Observe(seconds)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
