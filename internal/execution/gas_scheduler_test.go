// Copyright 2025 Certen Protocol
//
// Unit tests for the GasScheduler.

package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/types"
)

type fakeGasPriceSource struct {
	gwei float64
	err  error
}

func (f *fakeGasPriceSource) GasPriceGwei(ctx context.Context, chain types.ChainID) (float64, error) {
	return f.gwei, f.err
}

func TestShouldExecuteNow_L2AlwaysExecutes(t *testing.T) {
	g := NewGasScheduler(&fakeGasPriceSource{gwei: 1000}, nil)
	decision, err := g.ShouldExecuteNow(context.Background(), types.Chain{ID: types.ChainArbitrum, Family: types.FamilyEVM})
	require.NoError(t, err)
	require.True(t, decision.Execute)
}

func TestShouldExecuteNow_NonEvmAlwaysExecutes(t *testing.T) {
	g := NewGasScheduler(&fakeGasPriceSource{gwei: 1000}, nil)
	decision, err := g.ShouldExecuteNow(context.Background(), types.Chain{ID: types.ChainSolana, Family: types.FamilySolana})
	require.NoError(t, err)
	require.True(t, decision.Execute)
}

func TestShouldExecuteNow_MainnetGatedByThreshold(t *testing.T) {
	ethereum := types.Chain{ID: types.ChainEthereum, Family: types.FamilyEVM}

	below := NewGasScheduler(&fakeGasPriceSource{gwei: 20}, nil)
	decision, err := below.ShouldExecuteNow(context.Background(), ethereum)
	require.NoError(t, err)
	require.True(t, decision.Execute)
	require.Equal(t, 30.0, decision.MaxGwei)

	above := NewGasScheduler(&fakeGasPriceSource{gwei: 40}, nil)
	decision, err = above.ShouldExecuteNow(context.Background(), ethereum)
	require.NoError(t, err)
	require.False(t, decision.Execute)
}

func TestShouldExecuteNow_CustomThresholdOverridesDefault(t *testing.T) {
	g := NewGasScheduler(&fakeGasPriceSource{gwei: 10}, GasThresholds{types.ChainEthereum: 5})
	decision, err := g.ShouldExecuteNow(context.Background(), types.Chain{ID: types.ChainEthereum, Family: types.FamilyEVM})
	require.NoError(t, err)
	require.False(t, decision.Execute, "10 gwei observed should exceed the overridden 5 gwei ceiling")
}

func TestShouldExecuteNow_RpcErrorWrapsAsTransient(t *testing.T) {
	g := NewGasScheduler(&fakeGasPriceSource{err: context.DeadlineExceeded}, nil)
	_, err := g.ShouldExecuteNow(context.Background(), types.Chain{ID: types.ChainEthereum, Family: types.FamilyEVM})
	require.Error(t, err)
	require.Equal(t, KindRpcTransient, KindOf(err))
}

func TestTick_ReleasesQueuedSignalWhenGasDrops(t *testing.T) {
	src := &fakeGasPriceSource{gwei: 100}
	g := NewGasScheduler(src, nil)
	ethereum := types.Chain{ID: types.ChainEthereum, Family: types.FamilyEVM}

	release := g.Enqueue(context.Background(), ethereum, types.Signal{SignalID: "s1"}, time.Hour)

	done := g.tick(context.Background(), ethereum)
	require.False(t, done, "gas still above threshold, signal stays queued")

	select {
	case <-release:
		t.Fatal("signal should not have released while gas is high")
	default:
	}

	src.gwei = 10
	done = g.tick(context.Background(), ethereum)
	require.True(t, done, "queue should drain once gas drops")

	select {
	case result := <-release:
		require.Equal(t, "s1", result.Signal.SignalID)
		require.False(t, result.TimedOut)
	default:
		t.Fatal("expected signal to release once gas dropped below threshold")
	}
}

func TestTick_ReleasesOnTimeoutEvenIfGasStillHigh(t *testing.T) {
	src := &fakeGasPriceSource{gwei: 100}
	g := NewGasScheduler(src, nil)
	ethereum := types.Chain{ID: types.ChainEthereum, Family: types.FamilyEVM}

	var warned types.Signal
	g.OnTimeoutWarning(func(s types.Signal) { warned = s })

	release := g.Enqueue(context.Background(), ethereum, types.Signal{SignalID: "s2"}, -time.Second)

	done := g.tick(context.Background(), ethereum)
	require.True(t, done)

	result := <-release
	require.True(t, result.TimedOut)
	require.Equal(t, "s2", warned.SignalID)
}
