package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	m.Submission("btc-usd", ResultAccepted)
	m.Submission("btc-usd", ResultAccepted)
	m.Submission("btc-usd", ResultInsufficientFunds)
	m.Trade("btc-usd", 5)
	m.Trade("btc-usd", 3)
	m.Resting("btc-usd", "buy", 4)
	m.StartTimer("btc-usd").ObserveDuration()

	if got := testutil.ToFloat64(m.submissions.WithLabelValues("btc-usd", ResultAccepted)); got != 2 {
		t.Errorf("accepted = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.trades.WithLabelValues("btc-usd")); got != 2 {
		t.Errorf("trades = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.volume.WithLabelValues("btc-usd")); got != 8 {
		t.Errorf("volume = %v, want 8", got)
	}
	if got := testutil.ToFloat64(m.resting.WithLabelValues("btc-usd", "buy")); got != 4 {
		t.Errorf("resting = %v, want 4", got)
	}
	if n := testutil.CollectAndCount(m.matchTime); n != 1 {
		t.Errorf("histogram series = %d, want 1", n)
	}
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("second registration succeeded")
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Submission("x", ResultInvalid)
	m.Trade("x", 1)
	m.Resting("x", "sell", 1)
	m.QueueDepth("x", 1)
	m.StartTimer("x").ObserveDuration()
}
