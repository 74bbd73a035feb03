// Copyright 2025 Certen Protocol
//
// Package adapter defines the per-protocol encoder interface (C3) the core
// invokes to turn deposit/withdraw/harvest/swap requests into chain-neutral
// TxPayloads, plus the (protocolId, chain) registry lookup.
//
// Per the §9 redesign notes, this is a flat capability interface rather
// than a class hierarchy: the base Adapter interface covers every
// protocol, and the LP-only swap operation lives on the optional CanSwap
// sub-interface the caller feature-tests for instead of
// downcasting to a concrete protocol type. Grounded structurally on
// pkg/chain/strategy/interface.go's ChainExecutionStrategy contract,
// adapted from "per-chain strategy" to "per-protocol adapter".

package adapter

import (
	"context"
	"errors"

	"github.com/certen/yield-orchestrator/internal/types"
)

// Category classifies a protocol's product type.
type Category string

const (
	CategoryDEX         Category = "dex"
	CategoryLending     Category = "lending"
	CategoryStaking     Category = "staking"
	CategoryYield       Category = "yield"
	CategoryBridge      Category = "bridge"
	CategoryDerivatives Category = "derivatives"
)

// DepositParams carries everything an adapter needs to encode a deposit.
type DepositParams struct {
	Wallet    string
	PoolID    string
	AmountUsd float64
	Tokens    []types.TokenAmount
}

// WithdrawParams carries everything an adapter needs to encode a withdraw.
// Max=true means "withdraw the entire LP balance" (§4.9 exit rule).
type WithdrawParams struct {
	Wallet string
	PoolID string
	Max    bool
	Amount string
}

// HarvestParams carries everything an adapter needs to encode a harvest.
type HarvestParams struct {
	Wallet string
	PoolID string
}

// SwapParams carries everything an adapter needs to encode a swap.
type SwapParams struct {
	Wallet     string
	TokenIn    string
	TokenOut   string
	AmountIn   string
	MinAmount  string // post-slippage floor
}

// Adapter is the base capability every protocol implements. Adapters are
// pure encoders: they read chain state but never sign or submit (§4.3).
type Adapter interface {
	Chain() types.ChainID
	ProtocolID() string
	Category() Category

	// Initialize connects to an RPC and fails fast on unreachable nodes.
	Initialize(ctx context.Context) error

	GetPosition(ctx context.Context, wallet, poolID string) (*types.Position, error)
	GetAllPositions(ctx context.Context, wallet string) ([]types.Position, error)

	Deposit(ctx context.Context, p DepositParams) (types.TxPayload, error)
	Withdraw(ctx context.Context, p WithdrawParams) (types.TxPayload, error)
	Harvest(ctx context.Context, p HarvestParams) (types.TxPayload, error)
	Compound(ctx context.Context, p HarvestParams) ([]types.TxPayload, error)

	// QuoteDeposit/QuoteWithdraw estimate the USD value a step will move,
	// used by the planner to populate Step.UsdValue without submitting.
	QuoteDeposit(ctx context.Context, p DepositParams) (float64, error)
	QuoteWithdraw(ctx context.Context, p WithdrawParams) (float64, error)
}

// CanSwap is the optional capability LP/DEX adapters expose; the registry
// exposes it by feature test rather than the caller downcasting to a
// concrete protocol type.
type CanSwap interface {
	// Aggregator identifies which DEX aggregator Swap encodes through
	// (e.g. "1inch", "paraswap"), so the planner can enforce the swap
	// aggregator whitelist before building the step.
	Aggregator() string
	Swap(ctx context.Context, p SwapParams) (types.TxPayload, error)
}

// ErrNoAdapter is returned by Registry.Lookup when no adapter is
// registered for the requested (protocolID, chain) pair.
var ErrNoAdapter = errors.New("adapter: no adapter registered for protocol/chain")

// Key identifies one adapter registration.
type Key struct {
	ProtocolID string
	Chain      types.ChainID
}

// Registry is the core's only way to reach a concrete Adapter: lookup by
// (protocolId, chain), never a type switch on a concrete protocol.
type Registry struct {
	adapters map[Key]Adapter
}

// NewRegistry returns an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Key]Adapter)}
}

// Register adds an adapter under its own (ProtocolID, Chain) key.
func (r *Registry) Register(a Adapter) {
	r.adapters[Key{ProtocolID: a.ProtocolID(), Chain: a.Chain()}] = a
}

// Lookup resolves the adapter for a (protocolID, chain) pair.
func (r *Registry) Lookup(protocolID string, chain types.ChainID) (Adapter, error) {
	a, ok := r.adapters[Key{ProtocolID: protocolID, Chain: chain}]
	if !ok {
		return nil, ErrNoAdapter
	}
	return a, nil
}

// InitializeAll calls Initialize on every registered adapter, failing fast
// on the first unreachable RPC per §4.3.
func (r *Registry) InitializeAll(ctx context.Context) error {
	for key, a := range r.adapters {
		if err := a.Initialize(ctx); err != nil {
			return &initError{key: key, cause: err}
		}
	}
	return nil
}

type initError struct {
	key   Key
	cause error
}

func (e *initError) Error() string {
	return "adapter: initialize " + e.key.ProtocolID + "/" + string(e.key.Chain) + ": " + e.cause.Error()
}

func (e *initError) Unwrap() error { return e.cause }
