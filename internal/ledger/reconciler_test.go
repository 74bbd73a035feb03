// Copyright 2025 Certen Protocol
//
// Unit tests for the Reconciler.

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/types"
)

type fakeBalanceReader struct {
	pos *types.Position
	err error
}

func (f *fakeBalanceReader) GetPosition(ctx context.Context, wallet, poolID string) (*types.Position, error) {
	return f.pos, f.err
}

type fakeAprSource struct {
	apr float64
	err error
}

func (f *fakeAprSource) APR(ctx context.Context, poolID string) (float64, error) {
	return f.apr, f.err
}

func TestRevalue_PrefersAdapterBalanceRead(t *testing.T) {
	adapters := map[string]BalanceReader{
		"aave-v3": &fakeBalanceReader{pos: &types.Position{ValueUsd: 1200}},
	}
	r := NewReconciler(nil, adapters, &fakeAprSource{apr: 5})

	p := types.Position{WalletAddress: "0xabc", PoolID: "aave-v3-usdc", EntryValueUsd: 1000, OpenedAt: time.Now()}
	valueUsd, pnlUsd, err := r.revalue(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 1200.0, valueUsd)
	require.Equal(t, 200.0, pnlUsd)
}

func TestRevalue_FallsBackToAprWhenNoAdapterReports(t *testing.T) {
	adapters := map[string]BalanceReader{
		"aave-v3": &fakeBalanceReader{err: errors.New("rpc unreachable")},
	}
	r := NewReconciler(nil, adapters, &fakeAprSource{apr: 10})

	opened := time.Now().Add(-365 * 24 * time.Hour)
	p := types.Position{WalletAddress: "0xabc", PoolID: "aave-v3-usdc", EntryValueUsd: 1000, OpenedAt: opened}
	valueUsd, pnlUsd, err := r.revalue(context.Background(), p)
	require.NoError(t, err)
	require.InDelta(t, 1100.0, valueUsd, 1.0, "one year at 10%% APR on $1000 principal")
	require.InDelta(t, 100.0, pnlUsd, 1.0)
}

func TestRevalue_PropagatesAprError(t *testing.T) {
	r := NewReconciler(nil, map[string]BalanceReader{}, &fakeAprSource{err: errors.New("no apr feed")})

	_, _, err := r.revalue(context.Background(), types.Position{OpenedAt: time.Now()})
	require.Error(t, err)
}
