// Copyright 2025 Certen Protocol
//
// PositionRepository for position CRUD.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/yield-orchestrator/internal/types"
)

// PositionRepository handles position CRUD, grounded on the
// AnchorRepository CRUD shape (pkg/database/repository_anchor.go).
type PositionRepository struct {
	client *Client
}

// NewPositionRepository wires a PositionRepository over client.
func NewPositionRepository(client *Client) *PositionRepository {
	return &PositionRepository{client: client}
}

// Open inserts a newly opened position on a CONFIRMED DEPOSIT, per §4.13:
// entryValueUsd = valueUsd = usdValue at entry, status = active. Every call
// inserts a new row under a fresh position id; an existing active position
// for the same wallet and pool is not updated.
func (r *PositionRepository) Open(ctx context.Context, poolID, wallet string, chain types.ChainID, usdValue float64) (*types.Position, error) {
	p := &types.Position{
		PositionID:    uuid.New().String(),
		PoolID:        poolID,
		WalletAddress: wallet,
		Chain:         chain,
		ValueUsd:      usdValue,
		EntryValueUsd: usdValue,
		Status:        types.PositionActive,
		OpenedAt:      time.Now(),
		UpdatedAt:     time.Now(),
	}

	query := `
		INSERT INTO positions (position_id, pool_id, wallet_address, chain_id, value_usd, entry_value_usd, status, opened_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING position_id, opened_at, updated_at`

	err := r.client.db.QueryRowContext(ctx, query,
		p.PositionID, p.PoolID, p.WalletAddress, p.Chain, p.ValueUsd, p.EntryValueUsd, p.Status, p.OpenedAt, p.UpdatedAt,
	).Scan(&p.PositionID, &p.OpenedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: open position: %w", err)
	}
	return p, nil
}

// ApplyWithdraw recomputes a position's balance after a CONFIRMED
// WITHDRAW. When the remaining principal falls under dust, the position
// closes; otherwise it's partially reduced (§4.13).
func (r *PositionRepository) ApplyWithdraw(ctx context.Context, positionID string, remainingValueUsd float64, isDust bool) error {
	if isDust {
		_, err := r.client.db.ExecContext(ctx,
			`UPDATE positions SET value_usd = 0, status = 'closed', closed_at = now(), updated_at = now() WHERE position_id = $1`,
			positionID)
		if err != nil {
			return fmt.Errorf("store: close position: %w", err)
		}
		return nil
	}

	_, err := r.client.db.ExecContext(ctx,
		`UPDATE positions SET value_usd = $2, updated_at = now() WHERE position_id = $1`,
		positionID, remainingValueUsd)
	if err != nil {
		return fmt.Errorf("store: reduce position: %w", err)
	}
	return nil
}

// UpdateValuation writes a reconciler-computed valueUsd/unrealizedPnlUsd.
func (r *PositionRepository) UpdateValuation(ctx context.Context, positionID string, valueUsd, unrealizedPnlUsd float64) error {
	_, err := r.client.db.ExecContext(ctx,
		`UPDATE positions SET value_usd = $2, unrealized_pnl_usd = $3, updated_at = now() WHERE position_id = $1`,
		positionID, valueUsd, unrealizedPnlUsd)
	if err != nil {
		return fmt.Errorf("store: update valuation: %w", err)
	}
	return nil
}

// ByID loads a single position.
func (r *PositionRepository) ByID(ctx context.Context, positionID string) (*types.Position, error) {
	return r.scanOne(r.client.db.QueryRowContext(ctx, baseSelect+` WHERE position_id = $1`, positionID))
}

// ActiveByWalletPool finds the open position for a wallet/pool pair, the
// lookup a confirmed WITHDRAW needs to know which row to reduce or close.
func (r *PositionRepository) ActiveByWalletPool(ctx context.Context, wallet, poolID string) (*types.Position, error) {
	return r.scanOne(r.client.db.QueryRowContext(ctx,
		baseSelect+` WHERE wallet_address = $1 AND pool_id = $2 AND status = 'active'`, wallet, poolID))
}

// Active lists every active position, used by the periodic reconciler.
func (r *PositionRepository) Active(ctx context.Context) ([]types.Position, error) {
	rows, err := r.client.db.QueryContext(ctx, baseSelect+` WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("store: list active positions: %w", err)
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

const baseSelect = `SELECT position_id, pool_id, wallet_address, chain_id, amount_token0, amount_token1,
	value_usd, entry_value_usd, unrealized_pnl_usd, realized_pnl_usd, status, opened_at, closed_at, updated_at
	FROM positions`

type scanner interface {
	Scan(dest ...any) error
}

func (r *PositionRepository) scanOne(row scanner) (*types.Position, error) {
	return r.scanRow(row)
}

func (r *PositionRepository) scanRow(row scanner) (*types.Position, error) {
	var p types.Position
	var chain string
	var closedAt sql.NullTime

	if err := row.Scan(&p.PositionID, &p.PoolID, &p.WalletAddress, &chain, &p.AmountToken0, &p.AmountToken1,
		&p.ValueUsd, &p.EntryValueUsd, &p.UnrealizedPnlUsd, &p.RealizedPnlUsd, &p.Status, &p.OpenedAt, &closedAt, &p.UpdatedAt); err != nil {
		return nil, fmt.Errorf("store: scan position: %w", err)
	}
	p.Chain = types.ChainID(chain)
	if closedAt.Valid {
		p.ClosedAt = &closedAt.Time
	}
	return &p, nil
}

// Snapshot records a PnL-chart data point for a position (§4.13's
// reconciler writes one every cycle).
func (r *PositionRepository) Snapshot(ctx context.Context, positionID string, valueUsd, pnlUsd float64) error {
	_, err := r.client.db.ExecContext(ctx,
		`INSERT INTO pool_snapshots (position_id, value_usd, pnl_usd) VALUES ($1, $2, $3)`,
		positionID, valueUsd, pnlUsd)
	if err != nil {
		return fmt.Errorf("store: snapshot position: %w", err)
	}
	return nil
}
