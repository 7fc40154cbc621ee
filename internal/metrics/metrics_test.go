package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSweep(SweepResultOK, 2*time.Second)
	m.ObserveSweep(SweepResultOK, time.Second)
	m.ObserveSweep(SweepResultProbeFailed, 0)
	m.IncTransition("paid")
	m.IncDispatch("topup", DispatchResultOK)
	m.IncDispatch("points", DispatchResultFundsExhausted)
	m.IncCheckout("paid_from_balance")

	if got := testutil.ToFloat64(m.sweeps.WithLabelValues(SweepResultOK)); got != 2 {
		t.Fatalf("expected 2 ok sweeps, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweeps.WithLabelValues(SweepResultProbeFailed)); got != 1 {
		t.Fatalf("expected 1 probe failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("paid")); got != 1 {
		t.Fatalf("expected 1 paid transition, got %v", got)
	}
	if got := testutil.ToFloat64(m.dispatches.WithLabelValues("points", DispatchResultFundsExhausted)); got != 1 {
		t.Fatalf("expected 1 funds exhausted dispatch, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkouts.WithLabelValues("paid_from_balance")); got != 1 {
		t.Fatalf("expected 1 balance checkout, got %v", got)
	}
	if got := testutil.CollectAndCount(m.sweepDuration); got != 1 {
		t.Fatalf("expected one histogram series, got %d", got)
	}
}

func TestEngineMetrics_NilSafe(t *testing.T) {
	var m *EngineMetrics
	m.ObserveSweep(SweepResultOK, time.Second)
	m.IncTransition("paid")
	m.IncDispatch("topup", DispatchResultOK)
	m.IncCheckout("invoice_created")
}
