package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "finrange"

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	recordsTotal  *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	expectedMove  *prometheus.GaugeVec
	daysRemaining *prometheus.GaugeVec
}

// New registers the recorder's collectors on reg. A nil reg means the
// default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduler job executions by job and result",
			},
			[]string{"job", "result"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of scheduler jobs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"job"},
		),
		recordsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_created_total",
				Help:      "Expected-move records persisted",
			},
			[]string{"symbol"},
		),
		duplicates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_duplicate_total",
				Help:      "Record inserts skipped because (symbol, date) already existed",
			},
			[]string{"symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Errors encountered by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last quoted price per contract",
			},
			[]string{"symbol"},
		),
		expectedMove: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "expected_move",
				Help:      "Latest one-session expected move in price units",
			},
			[]string{"symbol"},
		),
		daysRemaining: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "days_remaining",
				Help:      "Trading days until the front contract expires",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordJobRun(job, result string) {
	r.jobRuns.WithLabelValues(job, result).Inc()
}

func (r *Recorder) RecordJobDuration(job string, seconds float64) {
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

func (r *Recorder) RecordCreated(symbol string) {
	r.recordsTotal.WithLabelValues(symbol).Inc()
}

func (r *Recorder) RecordDuplicate(symbol string) {
	r.duplicates.WithLabelValues(symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

func (r *Recorder) RecordExpectedMove(symbol string, move float64) {
	r.expectedMove.WithLabelValues(symbol).Set(move)
}

func (r *Recorder) RecordDaysRemaining(symbol string, days int) {
	r.daysRemaining.WithLabelValues(symbol).Set(float64(days))
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordJobRun(string, string)        {}
func (Nop) RecordJobDuration(string, float64)  {}
func (Nop) RecordCreated(string)               {}
func (Nop) RecordDuplicate(string)             {}
func (Nop) RecordError(string)                 {}
func (Nop) RecordLastPrice(string, float64)    {}
func (Nop) RecordExpectedMove(string, float64) {}
func (Nop) RecordDaysRemaining(string, int)    {}
