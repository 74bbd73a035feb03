// Copyright 2025 Certen Protocol
//
// Package chain hosts C2 (NonceManager) plus the chain-family execution
// strategies in its evm/solana/move subpackages.

package chain

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/certen/yield-orchestrator/internal/types"
)

// RPCNonceSource fetches the current on-chain transaction count for an
// address, used to reseed the cache on first use or after a reset. Each
// chain-family strategy in internal/chain/evm et al. implements this.
type RPCNonceSource interface {
	TransactionCount(ctx context.Context, chain types.ChainID, address string) (uint64, error)
}

type nonceKey struct {
	chain   types.ChainID
	address string
}

// NonceResetObserver receives a notification each time Reset is called, for
// the metrics package to count without this package importing it directly.
type NonceResetObserver interface {
	ObserveReset(chain types.ChainID)
}

// NonceManager issues strictly monotonic, contiguous nonces per
// (chain, address), grounded on the NonceTracker mutex-guarded map idiom
// in pkg/execution/nonce_tracker.go, simplified to a "counter +
// reseed-on-miss" contract (§4.2): no pending-nonce bookkeeping,
// since the Executor's per-(chain,wallet) FIFO already prevents concurrent
// issuance racing ahead of confirmation.
type NonceManager struct {
	source RPCNonceSource
	logger *log.Logger

	mu     sync.Mutex
	nonces map[nonceKey]uint64

	observer NonceResetObserver
}

// New creates a NonceManager backed by source for on-miss reseeding.
func New(source RPCNonceSource) *NonceManager {
	return &NonceManager{
		source: source,
		logger: log.New(log.Writer(), "[NonceManager] ", log.LstdFlags),
		nonces: make(map[nonceKey]uint64),
	}
}

// SetObserver wires an optional NonceResetObserver (e.g. a metrics
// adapter); nil is safe and simply disables observation.
func (m *NonceManager) SetObserver(observer NonceResetObserver) {
	m.observer = observer
}

// NextNonce returns the next nonce to use for (chain, address), reseeding
// from the RPC if this is the first request for that key. The manager's
// mutex serializes issuance even across concurrent execute() calls, which
// is the source of the strict-monotonic guarantee in §3 invariant 2; no
// RPC call happens while holding the lock beyond the initial reseed.
func (m *NonceManager) NextNonce(ctx context.Context, chain types.ChainID, address string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := nonceKey{chain: chain, address: address}
	current, ok := m.nonces[key]
	if !ok {
		seeded, err := m.source.TransactionCount(ctx, chain, address)
		if err != nil {
			return 0, fmt.Errorf("nonce manager: reseed %s/%s: %w", chain, address, err)
		}
		current = seeded
		m.logger.Printf("seeded nonce %d for %s/%s", current, chain, address)
	}

	m.nonces[key] = current + 1
	return current, nil
}

// Reset drops the cached nonce for (chain, address), forcing the next
// NextNonce call to reseed from the RPC. Called on "nonce too low" /
// "replacement underpriced" RPC errors per §4.8 step 5.
func (m *NonceManager) Reset(chain types.ChainID, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nonces, nonceKey{chain: chain, address: address})
	m.logger.Printf("reset nonce cache for %s/%s", chain, address)
	if m.observer != nil {
		m.observer.ObserveReset(chain)
	}
}
