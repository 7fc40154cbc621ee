package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepResultOK          = "ok"
	SweepResultProbeFailed = "probe_failed"
	SweepResultListFailed  = "list_failed"
	SweepResultBusy        = "busy"

	DispatchResultOK             = "ok"
	DispatchResultDuplicate      = "duplicate"
	DispatchResultFundsExhausted = "funds_exhausted"
	DispatchResultFailed         = "failed"
)

// EngineMetrics captures reconciliation and fulfillment health signals.
type EngineMetrics struct {
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	transitions   *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	checkouts     *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineMetrics     *EngineMetrics
)

// Engine returns the singleton metrics registered on the default registerer.
func Engine() *EngineMetrics {
	engineMetricsOnce.Do(func() {
		engineMetrics = New(prometheus.DefaultRegisterer)
	})
	return engineMetrics
}

// New registers a fresh set of collectors on registerer.
func New(registerer prometheus.Registerer) *EngineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	sweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_sweeps_total",
		Help: "Reconciliation sweeps by result.",
	}, []string{"result"})
	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "engine_sweep_duration_seconds",
		Help:    "Wall time of a reconciliation sweep.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_invoice_transitions_total",
		Help: "Invoice status transitions applied locally.",
	}, []string{"to"})
	dispatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_dispatch_total",
		Help: "Fulfillment dispatches by intent kind and result.",
	}, []string{"kind", "result"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "engine_checkout_total",
		Help: "Checkouts by settlement mode.",
	}, []string{"mode"})

	registerer.MustRegister(sweeps, sweepDuration, transitions, dispatches, checkouts)

	return &EngineMetrics{
		sweeps:        sweeps,
		sweepDuration: sweepDuration,
		transitions:   transitions,
		dispatches:    dispatches,
		checkouts:     checkouts,
	}
}

func (m *EngineMetrics) ObserveSweep(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(duration.Seconds())
}

func (m *EngineMetrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *EngineMetrics) IncDispatch(kind, result string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(kind, result).Inc()
}

func (m *EngineMetrics) IncCheckout(mode string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(mode).Inc()
}

// Counter accessors for tests and health checks.

func (m *EngineMetrics) SweepCounter(result string) prometheus.Counter {
	return m.sweeps.WithLabelValues(result)
}

func (m *EngineMetrics) TransitionCounter(to string) prometheus.Counter {
	return m.transitions.WithLabelValues(to)
}

func (m *EngineMetrics) DispatchCounter(kind, result string) prometheus.Counter {
	return m.dispatches.WithLabelValues(kind, result)
}

func (m *EngineMetrics) CheckoutCounter(mode string) prometheus.Counter {
	return m.checkouts.WithLabelValues(mode)
}
