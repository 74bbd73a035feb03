// Copyright 2025 Certen Protocol
//
// Package metrics exposes the orchestrator's Prometheus gauges and
// counters on cfg.MetricsAddr (§6), built on
// github.com/prometheus/client_golang.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/yield-orchestrator/internal/execution"
	"github.com/certen/yield-orchestrator/internal/types"
)

// Metrics bundles every collector the execution pipeline updates.
type Metrics struct {
	StepsConfirmed  *prometheus.CounterVec
	StepsFailed     *prometheus.CounterVec
	GasGateWait     prometheus.Histogram
	NonceResets     *prometheus.CounterVec
	SignalsReceived prometheus.Counter
	PlanFailures    prometheus.Counter

	handler http.Handler
}

// New registers every collector against a private registry so repeated
// calls in tests don't panic on duplicate registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	m := &Metrics{
		StepsConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certen_steps_confirmed_total",
			Help: "Number of plan steps that reached CONFIRMED, by chain and step kind.",
		}, []string{"chain", "kind"}),
		StepsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certen_steps_failed_total",
			Help: "Number of plan steps that reached FAILED or REJECTED, by chain and error kind.",
		}, []string{"chain", "error_kind"}),
		GasGateWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "certen_gas_gate_wait_seconds",
			Help:    "Time a signal spent queued in the gas gate before release.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		NonceResets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "certen_nonce_resets_total",
			Help: "Number of times NonceManager.Reset was called, by chain.",
		}, []string{"chain"}),
		SignalsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "certen_signals_received_total",
			Help: "Number of signals drained from the dispatch source.",
		}),
		PlanFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "certen_plan_failures_total",
			Help: "Number of signals that failed ExecutionPlanner.Plan.",
		}),
	}
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return m
}

// Handler returns the /metrics HTTP handler to mount on cfg.MetricsAddr.
func (m *Metrics) Handler() http.Handler { return m.handler }

// StepObserver adapts Metrics to execution.StepObserver, so Executor counts
// step outcomes and gas-gate wait without importing this package directly.
type StepObserver struct {
	metrics *Metrics
}

// NewStepObserver wraps m for wiring into execution.Executor.SetObserver.
func NewStepObserver(m *Metrics) *StepObserver {
	return &StepObserver{metrics: m}
}

func (o *StepObserver) ObserveConfirmed(chain types.ChainID, kind types.StepKind) {
	o.metrics.StepsConfirmed.WithLabelValues(string(chain), string(kind)).Inc()
}

func (o *StepObserver) ObserveFailed(chain types.ChainID, errorKind execution.Kind) {
	o.metrics.StepsFailed.WithLabelValues(string(chain), string(errorKind)).Inc()
}

func (o *StepObserver) ObserveGasGateWait(wait time.Duration) {
	o.metrics.GasGateWait.Observe(wait.Seconds())
}

// NonceResetObserver adapts Metrics to chain.NonceResetObserver.
type NonceResetObserver struct {
	metrics *Metrics
}

// NewNonceResetObserver wraps m for wiring into a NonceManager.
func NewNonceResetObserver(m *Metrics) *NonceResetObserver {
	return &NonceResetObserver{metrics: m}
}

func (o *NonceResetObserver) ObserveReset(chain types.ChainID) {
	o.metrics.NonceResets.WithLabelValues(string(chain)).Inc()
}
