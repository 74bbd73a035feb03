// Copyright 2025 Certen Protocol
//
// Unit tests for Prometheus metrics collectors.

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/execution"
	"github.com/certen/yield-orchestrator/internal/types"
)

func TestStepObserver_ObserveConfirmedIncrementsLabeledCounter(t *testing.T) {
	m := New()
	obs := NewStepObserver(m)

	obs.ObserveConfirmed(types.ChainEthereum, types.StepDeposit)
	obs.ObserveConfirmed(types.ChainEthereum, types.StepDeposit)

	require.Equal(t, float64(2), testutil.ToFloat64(m.StepsConfirmed.WithLabelValues("ethereum", string(types.StepDeposit))))
}

func TestStepObserver_ObserveFailedIncrementsByErrorKind(t *testing.T) {
	m := New()
	obs := NewStepObserver(m)

	obs.ObserveFailed(types.ChainArbitrum, execution.KindSlippageExceeded)

	require.Equal(t, float64(1), testutil.ToFloat64(m.StepsFailed.WithLabelValues("arbitrum", string(execution.KindSlippageExceeded))))
}

func TestStepObserver_ObserveGasGateWaitRecordsSample(t *testing.T) {
	m := New()
	obs := NewStepObserver(m)

	var before, after dto.Metric
	require.NoError(t, m.GasGateWait.Write(&before))
	require.Equal(t, uint64(0), before.GetHistogram().GetSampleCount())
	obs.ObserveGasGateWait(0)
	require.NoError(t, m.GasGateWait.Write(&after))
	require.Equal(t, uint64(1), after.GetHistogram().GetSampleCount())
}

func TestNonceResetObserver_ObserveResetIncrementsByChain(t *testing.T) {
	m := New()
	obs := NewNonceResetObserver(m)

	obs.ObserveReset(types.ChainEthereum)
	obs.ObserveReset(types.ChainEthereum)
	obs.ObserveReset(types.ChainPolygon)

	require.Equal(t, float64(2), testutil.ToFloat64(m.NonceResets.WithLabelValues("ethereum")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.NonceResets.WithLabelValues("polygon")))
}

func TestHandler_ServesPrometheusExpositionFormat(t *testing.T) {
	m := New()
	NewStepObserver(m).ObserveConfirmed(types.ChainEthereum, types.StepDeposit)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "certen_steps_confirmed_total")
}
