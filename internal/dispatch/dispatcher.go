// Copyright 2025 Certen Protocol
//
// Package dispatch implements C10, the SignalDispatcher: a single
// process-wide consumer of the durable signal stream that dedupes,
// policy-gates, plans and executes each signal, partitioned by chain so
// nonce ordering per wallet is never contended across goroutines.

package dispatch

import (
	"context"
	"fmt"
	"log"

	"github.com/certen/yield-orchestrator/internal/adapter"
	"github.com/certen/yield-orchestrator/internal/execution"
	"github.com/certen/yield-orchestrator/internal/policy"
	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

// Source is the durable, at-least-once signal stream the dispatcher
// drains. internal/store.SignalQueue implements it over the signals table;
// this interface is the only contract the dispatcher needs from a source.
type Source interface {
	// Receive blocks until a signal is available or ctx is cancelled.
	// ack must be called once the signal's processing concludes,
	// regardless of outcome, to advance the at-least-once stream.
	Receive(ctx context.Context) (signal types.Signal, ack func(), err error)
}

// Dispatcher implements C10: per-chain worker goroutines drawing from
// chain-partitioned sub-queues, processing each chain's signals serially
// and different chains in parallel.
type Dispatcher struct {
	source  Source
	planner *execution.Planner
	gate    gateChecker
	executor *execution.Executor
	txRepo  *store.TransactionRepository
	auditRepo *store.AuditLogRepository
	logger  *log.Logger

	ledger    Ledger
	positions PositionFinder
	adapters  *adapter.Registry
	wallets   execution.WalletSource

	queues map[types.ChainID]chan queuedSignal
}

// gateChecker is the subset of policy.Gate the dispatcher calls directly,
// ahead of planning, per §4.10 step 2. *policy.Gate satisfies this.
type gateChecker interface {
	Evaluate(ctx context.Context, signal types.Signal) policy.Verdict
}

// Ledger is the subset of ledger.Ledger the dispatcher calls once a
// DEPOSIT/WITHDRAW step reaches CONFIRMED, per §4.13. *ledger.Ledger
// satisfies this.
type Ledger interface {
	OnDepositConfirmed(ctx context.Context, rec types.TxRecord, wallet string) (*types.Position, error)
	OnWithdrawConfirmed(ctx context.Context, positionID string, remainingUnits, remainingUsd float64) error
}

// PositionFinder resolves the open position a confirmed WITHDRAW step
// should reduce or close. *store.PositionRepository satisfies this.
type PositionFinder interface {
	ActiveByWalletPool(ctx context.Context, wallet, poolID string) (*types.Position, error)
}

type queuedSignal struct {
	signal types.Signal
	ack    func()
}

// NewDispatcher wires a Dispatcher. chains lists every ChainID the
// dispatcher should start a worker for; signals for an unlisted chain are
// logged and acked immediately without processing.
func NewDispatcher(source Source, planner *execution.Planner, gate gateChecker, executor *execution.Executor, txRepo *store.TransactionRepository, auditRepo *store.AuditLogRepository, ledger Ledger, positions PositionFinder, adapters *adapter.Registry, wallets execution.WalletSource, chains []types.ChainID) *Dispatcher {
	queues := make(map[types.ChainID]chan queuedSignal, len(chains))
	for _, c := range chains {
		queues[c] = make(chan queuedSignal, 64)
	}
	return &Dispatcher{
		source: source, planner: planner, gate: gate, executor: executor,
		txRepo: txRepo, auditRepo: auditRepo,
		ledger: ledger, positions: positions, adapters: adapters, wallets: wallets,
		logger: log.New(log.Writer(), "[Dispatcher] ", log.LstdFlags),
		queues: queues,
	}
}

// Run starts one worker goroutine per configured chain and blocks pulling
// from Source until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for chain, queue := range d.queues {
		go d.worker(ctx, chain, queue)
	}

	for {
		select {
		case <-ctx.Done():
			for _, q := range d.queues {
				close(q)
			}
			return
		default:
		}

		signal, ack, err := d.source.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Printf("receive failed: %v", err)
			continue
		}

		queue, ok := d.queues[signal.Chain]
		if !ok {
			d.logger.Printf("signal %s references unconfigured chain %s, acking without processing", signal.SignalID, signal.Chain)
			ack()
			continue
		}
		queue <- queuedSignal{signal: signal, ack: ack}
	}
}

// worker drains one chain's sub-queue serially, guaranteeing no two
// signals for the same chain (and therefore the same NonceManager key)
// are planned or executed concurrently.
func (d *Dispatcher) worker(ctx context.Context, chain types.ChainID, queue chan queuedSignal) {
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-queue:
			if !ok {
				return
			}
			d.process(ctx, item.signal)
			item.ack()
		}
	}
}

// process implements the §4.10 contract for a single signal.
func (d *Dispatcher) process(ctx context.Context, signal types.Signal) {
	existing, err := d.txRepo.BySignal(ctx, signal.SignalID)
	if err != nil {
		d.logger.Printf("signal %s: dedupe check failed: %v", signal.SignalID, err)
		return
	}
	if len(existing) > 0 {
		d.logger.Printf("signal %s already planned (%d steps on record), skipping", signal.SignalID, len(existing))
		return
	}

	verdict := d.gate.Evaluate(ctx, signal)
	if !verdict.Accept {
		d.audit(ctx, signal, "policy_rejection", store.SeverityWarning, verdict.Reason)
		return
	}

	plan, err := d.planner.Plan(ctx, signal)
	if err != nil {
		d.audit(ctx, signal, "plan_failed", store.SeverityError, err.Error())
		return
	}

	confirmed := make(map[types.StepIndex]bool)
	aborted := false

	for i, step := range plan.Steps {
		idx := types.StepIndex(i)
		if aborted {
			_ = d.txRepo.UpdateStatus(ctx, signal.SignalID, idx, types.StatusSkipped, "", 0, false)
			continue
		}
		if !plan.Ready(i, confirmed) {
			// DependsOn ordering is already topological by construction
			// (ExecutionPlanner only appends forward-pointing indices),
			// so an unready step here means an earlier one in this same
			// pass failed; treat it the same as an abort.
			aborted = true
			_ = d.txRepo.UpdateStatus(ctx, signal.SignalID, idx, types.StatusSkipped, "", 0, false)
			continue
		}

		rec, err := d.executor.Execute(ctx, signal, step, idx)
		if err != nil || rec == nil || rec.Status != types.StatusConfirmed {
			aborted = true
			d.audit(ctx, signal, "step_failed", store.SeverityError, fmt.Sprintf("step %d (%s): %v", i, step.Kind, err))
			continue
		}
		confirmed[idx] = true
		d.applyLedger(ctx, signal, *rec)
	}

	if aborted && (signal.Action == types.ActionRebalance || signal.Action == types.ActionCompound) {
		d.audit(ctx, signal, "partial_failure_alert", store.SeverityError, fmt.Sprintf("%s aborted mid-plan; no automated rollback attempted", signal.Action))
	}
}

// applyLedger reacts to a just-confirmed DEPOSIT/WITHDRAW record per
// §4.13. Every other step kind is a no-op here: swaps, approvals and
// harvests don't change which pool the wallet holds capital in. Ledger
// failures are logged, not fatal: the on-chain effect already happened,
// and the next Reconciler tick will eventually correct the position's
// valuation even if this synchronous update is missed.
func (d *Dispatcher) applyLedger(ctx context.Context, signal types.Signal, rec types.TxRecord) {
	if d.ledger == nil {
		return
	}

	switch rec.Kind {
	case types.StepDeposit:
		wallet, ok := d.wallets.WalletAddress(rec.Chain)
		if !ok {
			d.logger.Printf("signal %s: no wallet configured for chain %s, skipping ledger open", signal.SignalID, rec.Chain)
			return
		}
		if _, err := d.ledger.OnDepositConfirmed(ctx, rec, wallet); err != nil {
			d.logger.Printf("signal %s: ledger open failed: %v", signal.SignalID, err)
		}

	case types.StepWithdraw:
		wallet, ok := d.wallets.WalletAddress(rec.Chain)
		if !ok {
			d.logger.Printf("signal %s: no wallet configured for chain %s, skipping ledger close", signal.SignalID, rec.Chain)
			return
		}
		pos, err := d.positions.ActiveByWalletPool(ctx, wallet, rec.PoolID)
		if err != nil || pos == nil {
			d.logger.Printf("signal %s: no open position for %s/%s, skipping ledger close: %v", signal.SignalID, wallet, rec.PoolID, err)
			return
		}

		remainingUnits, remainingUsd := pos.AmountToken0, pos.ValueUsd
		if a, err := d.adapters.Lookup(signal.ProtocolID, rec.Chain); err == nil {
			if fresh, ferr := a.GetPosition(ctx, wallet, rec.PoolID); ferr == nil && fresh != nil {
				remainingUnits, remainingUsd = fresh.AmountToken0, fresh.ValueUsd
			}
		}

		if err := d.ledger.OnWithdrawConfirmed(ctx, pos.PositionID, remainingUnits, remainingUsd); err != nil {
			d.logger.Printf("signal %s: ledger close failed: %v", signal.SignalID, err)
		}
	}
}

func (d *Dispatcher) audit(ctx context.Context, signal types.Signal, eventType string, severity store.Severity, message string) {
	_ = d.auditRepo.Append(ctx, eventType, severity, "SignalDispatcher", message, map[string]any{
		"signalId": signal.SignalID,
		"action":   signal.Action,
	})
}
