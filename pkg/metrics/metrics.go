// Package metrics exposes exchange counters and timings to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hyperspot"

// Submission results
const (
	ResultAccepted          = "accepted"
	ResultInvalid           = "invalid"
	ResultInsufficientFunds = "insufficient_funds"
	ResultPersistence       = "persistence_error"
	ResultInvariant         = "invariant_violation"
)

type Metrics struct {
	submissions *prometheus.CounterVec
	trades      *prometheus.CounterVec
	volume      *prometheus.CounterVec
	matchTime   *prometheus.HistogramVec
	resting     *prometheus.GaugeVec
	queueDepth  *prometheus.GaugeVec
}

// New creates the exchange metrics and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "submissions_total",
			Help:      "Order submissions by instrument and result",
		}, []string{"instrument", "result"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "total",
			Help:      "Trades executed by instrument",
		}, []string{"instrument"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "base_volume_total",
			Help:      "Traded quantity in base minor units",
		}, []string{"instrument"}),
		matchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "submission_seconds",
			Help:      "Time from dequeue to commit of one submission",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}, []string{"instrument"}),
		resting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "resting_orders",
			Help:      "Resting orders by instrument and side",
		}, []string{"instrument", "side"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "queue_depth",
			Help:      "Submissions waiting for an instrument worker",
		}, []string{"instrument"}),
	}

	for _, c := range []prometheus.Collector{m.submissions, m.trades, m.volume, m.matchTime, m.resting, m.queueDepth} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Submission(instrument, result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(instrument, result).Inc()
}

func (m *Metrics) Trade(instrument string, qty int64) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(instrument).Inc()
	m.volume.WithLabelValues(instrument).Add(float64(qty))
}

func (m *Metrics) Resting(instrument, side string, n int) {
	if m == nil {
		return
	}
	m.resting.WithLabelValues(instrument, side).Set(float64(n))
}

func (m *Metrics) QueueDepth(instrument string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(instrument).Set(float64(n))
}

// Timer observes elapsed time into the submission histogram
type Timer struct {
	m          *Metrics
	instrument string
	start      time.Time
}

func (m *Metrics) StartTimer(instrument string) Timer {
	return Timer{m: m, instrument: instrument, start: time.Now()}
}

func (t Timer) ObserveDuration() {
	if t.m == nil {
		return
	}
	t.m.matchTime.WithLabelValues(t.instrument).Observe(time.Since(t.start).Seconds())
}
