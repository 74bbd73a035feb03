// Copyright 2025 Certen Protocol
//
// Route selection across direct, aggregator and solver execution paths.

package execution

import (
	"context"

	"github.com/certen/yield-orchestrator/internal/types"
)

// RouteMethod is one of the submission paths §4.6 names.
type RouteMethod string

const (
	RouteDirect            RouteMethod = "direct"
	RouteMevBlocker        RouteMethod = "mev_blocker"
	RouteFlashbotsProtect  RouteMethod = "flashbots_protect"
	RouteCowProtocol       RouteMethod = "cow_protocol"
	RouteUniswapX          RouteMethod = "uniswapx"
	Route1inchFusion       RouteMethod = "1inch_fusion"
	RouteJupiter           RouteMethod = "jupiter"
)

// RouteInputs is the pure function's input tuple (§8 property 7:
// "IntentRouter mapping is pure").
type RouteInputs struct {
	Chain           types.ChainID
	AmountUsd       float64
	Urgency         types.Urgency
	CowSupported    bool
	FusionKeySet    bool
}

var l2WithCow = map[types.ChainID]bool{
	types.ChainArbitrum: true,
	types.ChainBase:     true,
	types.ChainOptimism: true,
	types.ChainPolygon:  true,
}

// SelectRoute implements the §4.6 decision table exactly, in the order
// given there (each `if` is a priority, not an independent rule).
func SelectRoute(in RouteInputs) RouteMethod {
	switch {
	case in.Chain == types.ChainSolana:
		return RouteJupiter
	case in.Chain == types.ChainAptos:
		return RouteDirect
	case in.Chain == types.ChainEthereum && in.Urgency == types.UrgencyHigh:
		return RouteFlashbotsProtect
	case in.Chain == types.ChainEthereum && in.AmountUsd > 5000:
		return RouteCowProtocol
	case l2WithCow[in.Chain] && in.AmountUsd > 2000 && in.CowSupported:
		return RouteCowProtocol
	case l2WithCow[in.Chain] && in.FusionKeySet:
		return Route1inchFusion
	case in.Chain == types.ChainEthereum && in.AmountUsd > 500:
		return RouteMevBlocker
	case l2WithCow[in.Chain] && in.AmountUsd > 1000:
		return RouteUniswapX
	default:
		return RouteDirect
	}
}

// SubmitResult is the canonical status every route, direct or otherwise,
// surfaces back to the TxExecutor.
type SubmitResult struct {
	Method        RouteMethod
	OrderID       string
	TxHash        string
	Status        types.TxStatus
	MevProtection bool
	Err           error
}

// Route performs route-specific signing and submission. The router owns
// any route-specific signing (permit2 for UniswapX, EIP-712 order hash for
// CoW) internally; non-direct routes are treated as opaque here since
// their wire protocols are out of core scope (§1 Non-goals).
type Route interface {
	Submit(ctx context.Context, payload types.TxPayload, wallet string) (SubmitResult, error)
}

// IntentRouter dispatches to a registered Route implementation per method.
// It holds no submitter for the default direct path, which the TxExecutor
// itself drives through NonceManager/EVM Strategy rather than a separate
// Route (§4.8 step 4-5).
type IntentRouter struct {
	routes map[RouteMethod]Route
}

// NewIntentRouter builds a router with no routes registered; non-direct
// routes are added via Register as adapters for those aggregators become
// available.
func NewIntentRouter() *IntentRouter {
	return &IntentRouter{routes: make(map[RouteMethod]Route)}
}

// Register adds a Route implementation for method.
func (r *IntentRouter) Register(method RouteMethod, route Route) {
	r.routes[method] = route
}

// Lookup resolves a non-direct route; callers should check for RouteDirect
// themselves since direct submission lives in the Executor, not here.
func (r *IntentRouter) Lookup(method RouteMethod) (Route, bool) {
	route, ok := r.routes[method]
	return route, ok
}
