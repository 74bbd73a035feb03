package execution

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/certen/yield-orchestrator/internal/policy"
	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

// DefaultMaxWait is the gas-gate enqueue ceiling used when a Signal's
// params carry no explicit maxWaitMs (§8 scenario S3 default).
const DefaultMaxWait = 10 * time.Minute

// MaxRetriesPerStep bounds the §4.8 retry policy: a step is attempted at
// most this many times beyond its first try.
const MaxRetriesPerStep = 2

// RetryBackoff is the step of the linear backoff between retries: retry n
// waits n × RetryBackoff (§4.8 step 8).
const RetryBackoff = 2 * time.Second

// KeySource resolves the hot signing key for a chain family, if one is
// loaded. internal/keyvault.KeyVault implements this.
type KeySource interface {
	Get(chainFamily string) (string, bool)
}

// WalletSource resolves the orchestrator's own signing address per chain,
// used to simulate/submit from the right account.
type WalletSource interface {
	WalletAddress(chain types.ChainID) (string, bool)
}

// SignatureBridge persists a payload for external signing and blocks until
// it is broadcasted, rejected or expires (C12, §4.12). internal/execution's
// PendingSignatureBridge implements this.
type SignatureBridge interface {
	AwaitSignature(ctx context.Context, chain types.ChainID, kind types.StepKind, amountUsd float64, payload types.TxPayload) (txID string, err error)
}

// StepObserver receives a notification per terminal step outcome, for the
// metrics package to count without execution importing it directly.
type StepObserver interface {
	ObserveConfirmed(chain types.ChainID, kind types.StepKind)
	ObserveFailed(chain types.ChainID, errorKind Kind)
	ObserveGasGateWait(wait time.Duration)
}

// Executor implements C8: the single execute() pipeline every Step passes
// through — policy check, gas gate, simulate, route, sign & submit or
// pending-signature handoff, confirm, persist. Composes C2-C7 without
// knowing any chain-family's wire details beyond the Backend interface.
type Executor struct {
	backends map[types.Family]Backend
	chains   map[types.ChainID]types.Chain

	gas     *GasScheduler
	router  *IntentRouter
	gate    *policy.Gate
	keys    KeySource
	wallets WalletSource
	bridge  SignatureBridge

	txRepo    *store.TransactionRepository
	auditRepo *store.AuditLogRepository

	observer StepObserver

	// fusionEnabled mirrors whether a 1inch Fusion API key is configured;
	// RouteInputs.FusionKeySet is wired from this rather than hardcoded
	// false, so the 1inch_fusion route (§4.6) is reachable once fusion
	// support is configured.
	fusionEnabled bool
}

// SetFusionEnabled toggles whether SelectRoute may choose the
// 1inch_fusion route. Called once at startup from config.
func (e *Executor) SetFusionEnabled(enabled bool) {
	e.fusionEnabled = enabled
}

// SetObserver wires an optional StepObserver (e.g. a metrics adapter);
// nil is safe and simply disables observation.
func (e *Executor) SetObserver(observer StepObserver) {
	e.observer = observer
}

func (e *Executor) observe(chain types.ChainID, kind types.StepKind, err error) {
	if e.observer == nil {
		return
	}
	if err == nil {
		e.observer.ObserveConfirmed(chain, kind)
		return
	}
	e.observer.ObserveFailed(chain, KindOf(err))
}

func (e *Executor) gasGateWait(wait time.Duration) {
	if e.observer != nil {
		e.observer.ObserveGasGateWait(wait)
	}
}

// NewExecutor wires an Executor over its dependencies. chains maps every
// configured ChainID to its Chain metadata (family, gas-gating class);
// backends maps every supported Family to its execution.Backend.
func NewExecutor(
	backends map[types.Family]Backend,
	chains map[types.ChainID]types.Chain,
	gas *GasScheduler,
	router *IntentRouter,
	gate *policy.Gate,
	keys KeySource,
	wallets WalletSource,
	bridge SignatureBridge,
	txRepo *store.TransactionRepository,
	auditRepo *store.AuditLogRepository,
) *Executor {
	return &Executor{
		backends: backends, chains: chains,
		gas: gas, router: router, gate: gate,
		keys: keys, wallets: wallets, bridge: bridge,
		txRepo: txRepo, auditRepo: auditRepo,
	}
}

// Execute runs one Step of signal's Plan through the full pipeline,
// retrying per the §4.8/§7 policy, and returns its terminal TxRecord.
func (e *Executor) Execute(ctx context.Context, signal types.Signal, step types.Step, stepIndex types.StepIndex) (*types.TxRecord, error) {
	rec, created, err := e.txRepo.Create(ctx, types.TxRecord{
		Chain: step.Payload.Chain(), SignalID: signal.SignalID, StepIndex: stepIndex,
		PoolID: signal.PoolID, Kind: step.Kind, Status: types.StatusPending, AmountUsd: step.UsdValue,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: create tx record: %w", err)
	}
	if !created && rec.Status == types.StatusConfirmed {
		// Redelivered signal, step already confirmed: idempotent no-op
		// per §3 invariant 1.
		return rec, nil
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetriesPerStep; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return rec, ctx.Err()
			case <-time.After(time.Duration(attempt) * RetryBackoff):
			}
		}

		rec, lastErr = e.attempt(ctx, signal, step, stepIndex)
		if lastErr == nil {
			return rec, nil
		}

		kind := KindOf(lastErr)
		if kind == KindSlippageExceeded && signal.WidenSlippage {
			continue
		}
		if step.Kind == types.StepApprove {
			// APPROVE is resubmitted once on any failure other than a
			// policy rejection, after the same backoff.
			if attempt == 0 && kind != KindPolicyRejection {
				continue
			}
			break
		}
		if !Retryable(kind) {
			break
		}
	}

	if lastErr != nil {
		e.observe(signal.Chain, step.Kind, lastErr)
	}
	return rec, lastErr
}

// attempt runs exactly one pass of the pipeline: policy -> gas gate ->
// simulate -> route -> sign&submit -> confirm -> persist.
func (e *Executor) attempt(ctx context.Context, signal types.Signal, step types.Step, stepIndex types.StepIndex) (*types.TxRecord, error) {
	verdict := e.gate.Evaluate(ctx, signal)
	if !verdict.Accept {
		e.fail(ctx, signal.SignalID, stepIndex, types.StatusRejected)
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindPolicyRejection, verdict.Reason, nil)
	}
	if verdict.DryRun {
		// §8 property 4: a dry-run step still produces a TxRecord at
		// PENDING and an audit entry; it is planned and logged, never
		// submitted.
		e.audit(ctx, "dry_run_step", store.SeverityInfo, fmt.Sprintf("signal=%s step=%d kind=%s would execute (dry run)", signal.SignalID, stepIndex, step.Kind))
		return e.loadRecord(ctx, signal.SignalID, stepIndex), nil
	}

	chain, ok := e.chains[step.Payload.Chain()]
	if !ok {
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindConfig, fmt.Sprintf("unconfigured chain %s", step.Payload.Chain()), nil)
	}

	if step.Enqueuable {
		decision, err := e.gas.ShouldExecuteNow(ctx, chain)
		if err != nil {
			return e.loadRecord(ctx, signal.SignalID, stepIndex), err
		}
		if !decision.Execute {
			waitStart := time.Now()
			release := e.gas.Enqueue(ctx, chain, signal, maxWait(signal))
			select {
			case res := <-release:
				e.gasGateWait(time.Since(waitStart))
				if res.TimedOut {
					e.audit(ctx, "gas_gate_timeout", store.SeverityWarning, fmt.Sprintf("signal %s executed after gas-gate timeout", signal.SignalID))
				}
			case <-ctx.Done():
				return e.loadRecord(ctx, signal.SignalID, stepIndex), ctx.Err()
			}
		}
	}

	backend, ok := e.backends[chain.Family]
	if !ok {
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindConfig, fmt.Sprintf("no backend wired for family %s", chain.Family), nil)
	}

	wallet, ok := e.wallets.WalletAddress(chain.ID)
	if !ok {
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindConfig, fmt.Sprintf("no wallet configured for chain %s", chain.ID), nil)
	}

	e.updateStatus(ctx, signal.SignalID, stepIndex, types.StatusSimulating, "", 0, false)
	sim, err := backend.Simulate(ctx, wallet, step.Payload)
	if err != nil {
		e.fail(ctx, signal.SignalID, stepIndex, types.StatusFailed)
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindRpcTransient, "simulation call failed", err)
	}
	if !sim.OK {
		e.fail(ctx, signal.SignalID, stepIndex, types.StatusFailed)
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindReverted, sim.RevertReason, nil)
	}

	// The swap aggregator whitelist (policy.Gate.CheckAggregator) is
	// enforced by the planner when it builds a SWAP step, since only the
	// planner knows which DEX aggregator encoded it; the route selected
	// here is the MEV-protection/submission path, a separate concern.
	method := SelectRoute(RouteInputs{
		Chain: chain.ID, AmountUsd: step.UsdValue, Urgency: signal.Urgency,
		CowSupported: step.Kind == types.StepSwap, FusionKeySet: e.fusionEnabled,
	})
	if method != RouteDirect {
		if route, ok := e.router.Lookup(method); ok {
			result, err := route.Submit(ctx, step.Payload, wallet)
			if err != nil {
				return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindRpcTransient, "route submit failed", err)
			}
			if result.Status == types.StatusFailed || result.Status == types.StatusRejected {
				e.updateStatus(ctx, signal.SignalID, stepIndex, result.Status, result.TxHash, 0, false)
				return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindReverted, "route submission failed", result.Err)
			}
			return e.finish(ctx, signal, step, stepIndex, result.TxHash, 0)
		}
		// No adapter registered for this route yet: fall through to direct
		// submission rather than silently dropping MEV protection.
	}

	privateKey, hasKey := e.keys.Get(string(chain.Family))
	var txID string
	if hasKey {
		e.updateStatus(ctx, signal.SignalID, stepIndex, types.StatusSubmitted, "", 0, false)
		txID, err = backend.Submit(ctx, wallet, privateKey, step.Payload, sim.GasEstimate)
		if err != nil {
			kind := classifyBackendErr(err)
			return e.loadRecord(ctx, signal.SignalID, stepIndex), New(kind, "submit failed", err)
		}
	} else {
		txID, err = e.bridge.AwaitSignature(ctx, chain.ID, step.Kind, step.UsdValue, step.Payload)
		if err != nil {
			e.fail(ctx, signal.SignalID, stepIndex, types.StatusRejected)
			return e.loadRecord(ctx, signal.SignalID, stepIndex), err
		}
	}

	confirmation, err := backend.Confirm(ctx, txID)
	if err != nil {
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindTimeout, "confirmation polling failed", err)
	}
	if !confirmation.Success {
		e.updateStatus(ctx, signal.SignalID, stepIndex, types.StatusFailed, txID, confirmation.GasCostUsd, false)
		return e.loadRecord(ctx, signal.SignalID, stepIndex), New(KindReverted, "transaction reverted on-chain", nil)
	}

	return e.finish(ctx, signal, step, stepIndex, txID, confirmation.GasCostUsd)
}

// finish persists a successful terminal status and the §3 invariant 5
// audit row for mutating step kinds.
func (e *Executor) finish(ctx context.Context, signal types.Signal, step types.Step, stepIndex types.StepIndex, txID string, gasCostUsd float64) (*types.TxRecord, error) {
	e.updateStatus(ctx, signal.SignalID, stepIndex, types.StatusConfirmed, txID, gasCostUsd, true)
	if step.Kind.IsMutating() {
		e.audit(ctx, "step_confirmed", store.SeverityInfo, fmt.Sprintf("signal=%s step=%d kind=%s tx=%s", signal.SignalID, stepIndex, step.Kind, txID))
	}
	e.observe(signal.Chain, step.Kind, nil)
	return e.loadRecord(ctx, signal.SignalID, stepIndex), nil
}

func (e *Executor) fail(ctx context.Context, signalID string, stepIndex types.StepIndex, status types.TxStatus) {
	e.updateStatus(ctx, signalID, stepIndex, status, "", 0, false)
}

func (e *Executor) updateStatus(ctx context.Context, signalID string, stepIndex types.StepIndex, status types.TxStatus, txHash string, gasCostUsd float64, confirmed bool) {
	_ = e.txRepo.UpdateStatus(ctx, signalID, stepIndex, status, txHash, gasCostUsd, confirmed)
}

func (e *Executor) loadRecord(ctx context.Context, signalID string, stepIndex types.StepIndex) *types.TxRecord {
	rec, err := e.txRepo.BySignalStep(ctx, signalID, stepIndex)
	if err != nil {
		return &types.TxRecord{SignalID: signalID, StepIndex: stepIndex}
	}
	return rec
}

func (e *Executor) audit(ctx context.Context, eventType string, severity store.Severity, message string) {
	_ = e.auditRepo.Append(ctx, eventType, severity, "TxExecutor", message, nil)
}

func maxWait(signal types.Signal) time.Duration {
	v, ok := signal.Params["maxWaitMs"]
	if !ok {
		return DefaultMaxWait
	}
	ms, ok := v.(float64)
	if !ok || ms <= 0 {
		return DefaultMaxWait
	}
	return time.Duration(ms) * time.Millisecond
}

func classifyBackendErr(err error) Kind {
	if kind := KindOf(err); kind != KindReverted {
		return kind
	}
	msg := err.Error()
	if strings.Contains(msg, "nonce too low") || strings.Contains(msg, "replacement transaction underpriced") {
		return KindNonceMismatch
	}
	return KindRpcTransient
}
