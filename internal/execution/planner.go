// Copyright 2025 Certen Protocol
//
// Signal-to-step planning for the execution pipeline.

package execution

import (
	"context"
	"fmt"

	"github.com/certen/yield-orchestrator/internal/adapter"
	"github.com/certen/yield-orchestrator/internal/policy"
	"github.com/certen/yield-orchestrator/internal/types"
)

// BridgeAdapter exposes the HTLC-style lock/claim pair a cross-chain
// rebalance needs (§4.9). No bridge SDK appears anywhere in the retrieval
// pack (DESIGN.md's dropped-dependency ledger covers why), so this stays
// an interface a future concrete adapter implements; Planner degrades to
// a ConfigError when a cross-chain rebalance has none registered.
type BridgeAdapter interface {
	Lock(ctx context.Context, srcChain, dstChain types.ChainID, token string, amountUsd float64) (payload types.TxPayload, swapID string, err error)
	Claim(ctx context.Context, swapID string) (types.TxPayload, error)
}

// Planner implements C9: expanding a Signal into an ordered, dependency-
// aware Plan. It consults the adapter registry for payload encoding and
// usdValue and never signs or submits anything itself.
type Planner struct {
	adapters *adapter.Registry
	funds    *FundPreparer
	bridge   BridgeAdapter
	wallets  WalletSource
	gate     *policy.Gate
}

// NewPlanner wires a Planner. bridge may be nil if no cross-chain bridge
// adapter is configured; plain single-chain rebalances still work.
func NewPlanner(adapters *adapter.Registry, funds *FundPreparer, bridge BridgeAdapter, wallets WalletSource, gate *policy.Gate) *Planner {
	return &Planner{adapters: adapters, funds: funds, bridge: bridge, wallets: wallets, gate: gate}
}

// walletFor resolves the orchestrator's signing address on chain, used as
// the "from" address for adapter balance/allowance reads and deposits.
func (p *Planner) walletFor(chain types.ChainID) (string, error) {
	wallet, ok := p.wallets.WalletAddress(chain)
	if !ok {
		return "", New(KindConfig, fmt.Sprintf("no wallet configured for chain %s", chain), nil)
	}
	return wallet, nil
}

// Plan expands signal per the §4.9 action table.
func (p *Planner) Plan(ctx context.Context, signal types.Signal) (*types.Plan, error) {
	switch signal.Action {
	case types.ActionEnter, types.ActionIncrease:
		steps, err := p.enterSteps(ctx, signal, signal.PoolID, signal.AmountUsd)
		if err != nil {
			return nil, err
		}
		return &types.Plan{SignalID: signal.SignalID, Steps: steps}, nil

	case types.ActionExit, types.ActionDecrease:
		steps, err := p.exitSteps(ctx, signal, signal.PoolID, signal.Action == types.ActionExit)
		if err != nil {
			return nil, err
		}
		return &types.Plan{SignalID: signal.SignalID, Steps: steps}, nil

	case types.ActionCompound:
		steps, err := p.compoundSteps(ctx, signal)
		if err != nil {
			return nil, err
		}
		return &types.Plan{SignalID: signal.SignalID, Steps: steps}, nil

	case types.ActionRebalance:
		steps, err := p.rebalanceSteps(ctx, signal)
		if err != nil {
			return nil, err
		}
		return &types.Plan{SignalID: signal.SignalID, Steps: steps}, nil

	default:
		return nil, New(KindConfig, fmt.Sprintf("unknown signal action %q", signal.Action), nil)
	}
}

// enterSteps builds [WRAP?, APPROVE*, SWAP?, DEPOSIT] for an enter or
// increase, with DEPOSIT depending on every prior step.
func (p *Planner) enterSteps(ctx context.Context, signal types.Signal, poolID string, amountUsd float64) ([]types.Step, error) {
	a, err := p.adapters.Lookup(signal.ProtocolID, signal.Chain)
	if err != nil {
		return nil, New(KindConfig, fmt.Sprintf("enter: %v", err), err)
	}
	wallet, err := p.walletFor(signal.Chain)
	if err != nil {
		return nil, err
	}

	tokens := signal.Tokens()
	depositParams := adapter.DepositParams{Wallet: wallet, PoolID: poolID, AmountUsd: amountUsd, Tokens: tokens}

	var steps []types.Step
	var deps []types.StepIndex

	if len(tokens) > 0 {
		prepSteps, err := p.funds.Prepare(ctx, signal.Chain, wallet, poolID, tokens)
		if err != nil {
			return nil, err
		}
		for _, s := range prepSteps {
			deps = append(deps, types.StepIndex(len(steps)))
			steps = append(steps, s)
		}
	}

	if len(tokens) > 1 {
		if swapAdapter, ok := a.(adapter.CanSwap); ok {
			if verdict := p.gate.CheckAggregator(ctx, signal, swapAdapter.Aggregator()); !verdict.Accept {
				return nil, New(KindPolicyRejection, verdict.Reason, nil)
			}
			swapPayload, err := swapAdapter.Swap(ctx, adapter.SwapParams{
				Wallet: depositParams.Wallet, TokenIn: tokens[0].Address, TokenOut: tokens[1].Address, AmountIn: tokens[0].Amount,
			})
			if err != nil {
				return nil, New(KindConfig, "encode swap step", err)
			}
			swapIdx := types.StepIndex(len(steps))
			steps = append(steps, types.Step{Payload: swapPayload, Kind: types.StepSwap, UsdValue: amountUsd, DependsOn: deps})
			deps = append(deps, swapIdx)
		}
	}

	usdValue, err := a.QuoteDeposit(ctx, depositParams)
	if err != nil {
		usdValue = amountUsd // quote is best-effort; fall back to the signal's own figure
	}
	depositPayload, err := a.Deposit(ctx, depositParams)
	if err != nil {
		return nil, New(KindConfig, "encode deposit step", err)
	}
	steps = append(steps, types.Step{Payload: depositPayload, Kind: types.StepDeposit, UsdValue: usdValue, DependsOn: deps})

	return steps, nil
}

// exitSteps builds [HARVEST?, WITHDRAW] with WITHDRAW depending on HARVEST
// when one precedes it (exit always harvests first; decrease does not).
func (p *Planner) exitSteps(ctx context.Context, signal types.Signal, poolID string, harvestFirst bool) ([]types.Step, error) {
	a, err := p.adapters.Lookup(signal.ProtocolID, signal.Chain)
	if err != nil {
		return nil, New(KindConfig, fmt.Sprintf("exit: %v", err), err)
	}
	wallet, err := p.walletFor(signal.Chain)
	if err != nil {
		return nil, err
	}

	var steps []types.Step
	var deps []types.StepIndex

	if harvestFirst {
		harvestPayload, err := a.Harvest(ctx, adapter.HarvestParams{Wallet: wallet, PoolID: poolID})
		if err != nil {
			return nil, New(KindConfig, "encode harvest step", err)
		}
		deps = append(deps, types.StepIndex(len(steps)))
		steps = append(steps, types.Step{Payload: harvestPayload, Kind: types.StepHarvest, UsdValue: 0})
	}

	withdrawParams := adapter.WithdrawParams{Wallet: wallet, PoolID: poolID, Max: signal.Action == types.ActionExit}
	usdValue, err := a.QuoteWithdraw(ctx, withdrawParams)
	if err != nil {
		usdValue = signal.AmountUsd
	}
	withdrawPayload, err := a.Withdraw(ctx, withdrawParams)
	if err != nil {
		return nil, New(KindConfig, "encode withdraw step", err)
	}
	steps = append(steps, types.Step{Payload: withdrawPayload, Kind: types.StepWithdraw, UsdValue: usdValue, DependsOn: deps})

	return steps, nil
}

// compoundSteps builds [HARVEST, SWAP(reward→deposit tokens)*, DEPOSIT].
func (p *Planner) compoundSteps(ctx context.Context, signal types.Signal) ([]types.Step, error) {
	a, err := p.adapters.Lookup(signal.ProtocolID, signal.Chain)
	if err != nil {
		return nil, New(KindConfig, fmt.Sprintf("compound: %v", err), err)
	}
	wallet, err := p.walletFor(signal.Chain)
	if err != nil {
		return nil, err
	}

	compoundPayloads, err := a.Compound(ctx, adapter.HarvestParams{Wallet: wallet, PoolID: signal.PoolID})
	if err != nil {
		return nil, New(KindConfig, "encode compound steps", err)
	}

	steps := make([]types.Step, 0, len(compoundPayloads))
	var deps []types.StepIndex
	for i, payload := range compoundPayloads {
		kind := types.StepSwap
		if i == len(compoundPayloads)-1 {
			kind = types.StepDeposit
		} else if i == 0 {
			kind = types.StepHarvest
		}
		idx := types.StepIndex(len(steps))
		steps = append(steps, types.Step{Payload: payload, Kind: kind, UsdValue: 0, DependsOn: deps})
		deps = append(deps, idx)
	}
	return steps, nil
}

// rebalanceSteps builds exit(fromPool).steps, an optional cross-chain
// bridge pair, then enter(targetPool).steps, per §4.9. No automated
// rollback is attempted on partial failure (§4.10): that is the
// dispatcher's concern, not the planner's.
func (p *Planner) rebalanceSteps(ctx context.Context, signal types.Signal) ([]types.Step, error) {
	exitSteps, err := p.exitSteps(ctx, signal, signal.PoolID, true)
	if err != nil {
		return nil, err
	}

	targetChain := signal.Chain
	if tc, ok := signal.Params["targetChainId"].(string); ok && tc != "" {
		targetChain = types.ChainID(tc)
	}

	steps := append([]types.Step{}, exitSteps...)
	lastExit := types.StepIndex(len(steps) - 1)

	if targetChain != signal.Chain {
		if p.bridge == nil {
			return nil, New(KindConfig, "cross-chain rebalance requested but no bridge adapter configured", nil)
		}
		lockPayload, _, err := p.bridge.Lock(ctx, signal.Chain, targetChain, "", signal.AmountUsd)
		if err != nil {
			return nil, New(KindConfig, "encode bridge lock", err)
		}
		lockIdx := types.StepIndex(len(steps))
		steps = append(steps, types.Step{Payload: lockPayload, Kind: types.StepBridgeLock, UsdValue: signal.AmountUsd, DependsOn: []types.StepIndex{lastExit}})

		claimPayload, err := p.bridge.Claim(ctx, "")
		if err != nil {
			return nil, New(KindConfig, "encode bridge claim", err)
		}
		steps = append(steps, types.Step{Payload: claimPayload, Kind: types.StepBridgeClaim, UsdValue: signal.AmountUsd, DependsOn: []types.StepIndex{lockIdx}})
	}

	enterSignal := signal
	enterSignal.Chain = targetChain
	entrySteps, err := p.enterSteps(ctx, enterSignal, signal.TargetPoolID(), signal.AmountUsd)
	if err != nil {
		return nil, err
	}

	priorLast := types.StepIndex(len(steps) - 1)
	offset := len(steps)
	for _, s := range entrySteps {
		shifted := make([]types.StepIndex, len(s.DependsOn))
		for i, d := range s.DependsOn {
			shifted[i] = d + types.StepIndex(offset)
		}
		if len(shifted) == 0 {
			shifted = []types.StepIndex{priorLast}
		}
		s.DependsOn = shifted
		steps = append(steps, s)
	}

	return steps, nil
}
