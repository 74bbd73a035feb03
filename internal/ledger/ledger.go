// Copyright 2025 Certen Protocol
//
// Package ledger implements C13: the PositionLedger that reacts to
// confirmed DEPOSIT/WITHDRAW steps, and a periodic Reconciler that
// revalues every open position from on-chain state. Distinct from (and
// replacing) the key-value pkg/ledger: positions here are first-class
// rows with a valuation history, not an append-only KV store.

package ledger

import (
	"context"
	"log"
	"time"

	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

// DustThresholdUnits is the §4.13/§9 open-question-3 residual-balance
// floor, expressed in the position's primary token unit.
const DustThresholdUnits = 0.0001

// DustThresholdUsd is the companion USD floor; a position only closes
// when it is under both thresholds.
const DustThresholdUsd = 0.01

// IsDust reports whether a post-withdraw residual balance should close
// the position, per the §4.13 dust rule.
func IsDust(remainingUnits, remainingUsd float64) bool {
	return remainingUnits < DustThresholdUnits && remainingUsd < DustThresholdUsd
}

// Ledger implements the synchronous half of C13: reacting to a just-
// confirmed TxRecord by opening, growing or closing a Position.
type Ledger struct {
	positions *store.PositionRepository
	logger    *log.Logger
}

// New wires a Ledger over the position repository.
func New(positions *store.PositionRepository) *Ledger {
	return &Ledger{positions: positions, logger: log.New(log.Writer(), "[Ledger] ", log.LstdFlags)}
}

// OnDepositConfirmed opens a new position (§4.13: entryValueUsd = valueUsd
// = usdValue at entry, status = active). Called once per confirmed
// DEPOSIT TxRecord.
func (l *Ledger) OnDepositConfirmed(ctx context.Context, rec types.TxRecord, wallet string) (*types.Position, error) {
	pos, err := l.positions.Open(ctx, rec.PoolID, wallet, rec.Chain, rec.AmountUsd)
	if err != nil {
		return nil, err
	}
	l.logger.Printf("opened position %s for pool %s (%.2f USD)", pos.PositionID, pos.PoolID, pos.ValueUsd)
	return pos, nil
}

// OnWithdrawConfirmed recomputes the position's balance after a confirmed
// WITHDRAW. remainingUnits/remainingUsd is the post-withdraw residual the
// caller measured on-chain; the position closes if it is under the dust
// floor, otherwise it is proportionally reduced.
func (l *Ledger) OnWithdrawConfirmed(ctx context.Context, positionID string, remainingUnits, remainingUsd float64) error {
	dust := IsDust(remainingUnits, remainingUsd)
	if err := l.positions.ApplyWithdraw(ctx, positionID, remainingUsd, dust); err != nil {
		return err
	}
	if dust {
		l.logger.Printf("closed position %s (residual %.6f units / $%.4f under dust floor)", positionID, remainingUnits, remainingUsd)
	}
	return nil
}

// BalanceReader reads a position's current on-chain value directly. Most
// adapters implement this via GetPosition; it is the Reconciler's
// preferred valuation path.
type BalanceReader interface {
	GetPosition(ctx context.Context, wallet, poolID string) (*types.Position, error)
}

// AprSource is the fallback valuation path for adapters that can't report
// an exact on-chain balance: pnl = entryValue * apr/100 * holdingDays/365.
type AprSource interface {
	APR(ctx context.Context, poolID string) (float64, error)
}

// Reconciler implements the periodic half of C13: every tick, it revalues
// every active position from on-chain state (or the APR estimator when
// that's unavailable) and records a snapshot row for PnL charts.
type Reconciler struct {
	positions *store.PositionRepository
	adapters  map[string]BalanceReader // keyed by protocolId, wired at startup
	apr       AprSource
	interval  time.Duration
	logger    *log.Logger
}

// NewReconciler wires a Reconciler that revalues on a 5-minute tick by
// default (§4.13).
func NewReconciler(positions *store.PositionRepository, adapters map[string]BalanceReader, apr AprSource) *Reconciler {
	return &Reconciler{
		positions: positions, adapters: adapters, apr: apr,
		interval: 5 * time.Minute,
		logger:   log.New(log.Writer(), "[Reconciler] ", log.LstdFlags),
	}
}

// Run ticks until ctx is cancelled, revaluing every active position each
// round.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	positions, err := r.positions.Active(ctx)
	if err != nil {
		r.logger.Printf("load active positions failed: %v", err)
		return
	}

	for _, p := range positions {
		valueUsd, pnlUsd, err := r.revalue(ctx, p)
		if err != nil {
			r.logger.Printf("revalue %s failed: %v", p.PositionID, err)
			continue
		}
		if err := r.positions.UpdateValuation(ctx, p.PositionID, valueUsd, pnlUsd); err != nil {
			r.logger.Printf("update valuation %s failed: %v", p.PositionID, err)
			continue
		}
		if err := r.positions.Snapshot(ctx, p.PositionID, valueUsd, pnlUsd); err != nil {
			r.logger.Printf("snapshot %s failed: %v", p.PositionID, err)
		}
	}
}

// revalue tries each registered adapter's direct balance read in turn and
// uses the first that returns a position, falling back to the APR-based
// estimator when none does, per §4.13.
func (r *Reconciler) revalue(ctx context.Context, p types.Position) (valueUsd, pnlUsd float64, err error) {
	for _, reader := range r.adapters {
		pos, rerr := reader.GetPosition(ctx, p.WalletAddress, p.PoolID)
		if rerr == nil && pos != nil {
			return pos.ValueUsd, pos.ValueUsd - p.EntryValueUsd, nil
		}
	}

	apr, err := r.apr.APR(ctx, p.PoolID)
	if err != nil {
		return 0, 0, err
	}
	holdingDays := time.Since(p.OpenedAt).Hours() / 24
	pnl := p.EntryValueUsd * (apr / 100) * (holdingDays / 365)
	return p.EntryValueUsd + pnl, pnl, nil
}
