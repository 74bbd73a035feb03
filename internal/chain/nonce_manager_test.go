// Copyright 2025 Certen Protocol
//
// Unit tests for the NonceManager.

package chain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/types"
)

type fakeNonceSource struct {
	mu    sync.Mutex
	calls int
	seed  uint64
	err   error
}

func (f *fakeNonceSource) TransactionCount(ctx context.Context, chain types.ChainID, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.seed, nil
}

type fakeResetObserver struct {
	mu     sync.Mutex
	chains []types.ChainID
}

func (f *fakeResetObserver) ObserveReset(chain types.ChainID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains = append(f.chains, chain)
}

func TestNextNonce_SeedsOnceThenIncrements(t *testing.T) {
	src := &fakeNonceSource{seed: 5}
	m := New(src)

	n1, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(5), n1)

	n2, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(6), n2)

	n3, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(7), n3)

	require.Equal(t, 1, src.calls, "should only reseed once per key")
}

func TestNextNonce_KeyedByChainAndAddress(t *testing.T) {
	src := &fakeNonceSource{seed: 0}
	m := New(src)

	_, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	_, err = m.NextNonce(context.Background(), types.ChainArbitrum, "0xabc")
	require.NoError(t, err)
	_, err = m.NextNonce(context.Background(), types.ChainEthereum, "0xdef")
	require.NoError(t, err)

	require.Equal(t, 3, src.calls, "distinct (chain, address) pairs each reseed independently")
}

func TestNextNonce_ReseedFailurePropagates(t *testing.T) {
	src := &fakeNonceSource{err: errors.New("rpc down")}
	m := New(src)

	_, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.Error(t, err)
}

func TestReset_ForcesReseedAndNotifiesObserver(t *testing.T) {
	src := &fakeNonceSource{seed: 10}
	m := New(src)
	obs := &fakeResetObserver{}
	m.SetObserver(obs)

	n1, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(10), n1)

	m.Reset(types.ChainEthereum, "0xabc")
	require.Equal(t, []types.ChainID{types.ChainEthereum}, obs.chains)

	src.seed = 99
	n2, err := m.NextNonce(context.Background(), types.ChainEthereum, "0xabc")
	require.NoError(t, err)
	require.Equal(t, uint64(99), n2, "reset should force a fresh reseed")
	require.Equal(t, 2, src.calls)
}

func TestReset_WithoutObserverDoesNotPanic(t *testing.T) {
	m := New(&fakeNonceSource{seed: 1})
	require.NotPanics(t, func() {
		m.Reset(types.ChainEthereum, "0xabc")
	})
}
