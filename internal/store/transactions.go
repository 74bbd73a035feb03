// Copyright 2025 Certen Protocol
//
// TransactionRepository for TxRecord persistence and idempotent upserts.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/certen/yield-orchestrator/internal/types"
)

// TransactionRepository handles append-then-update-status TxRecord rows.
// The unique constraint on (signal_id, step_index) is what makes
// at-least-once signal redelivery safe (§3 invariant 1, §9 redesign
// notes): a second insert for the same key is a conflict, not a duplicate
// row.
type TransactionRepository struct {
	client *Client
}

// NewTransactionRepository wires a TransactionRepository over client.
func NewTransactionRepository(client *Client) *TransactionRepository {
	return &TransactionRepository{client: client}
}

// Create inserts a new TxRecord in PENDING status. Returns the existing
// row unchanged (ok=false) if (signalID, stepIndex) already has a record,
// so callers can detect a redelivery before doing any chain work.
func (r *TransactionRepository) Create(ctx context.Context, rec types.TxRecord) (*types.TxRecord, bool, error) {
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("store: marshal metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (chain_id, signal_id, step_index, pool_id, position_id, tx_type, status, amount_usd, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (signal_id, step_index) DO NOTHING`

	res, err := r.client.db.ExecContext(ctx, query,
		rec.Chain, rec.SignalID, rec.StepIndex, rec.PoolID, nullableStr(rec.PositionID), rec.Kind, rec.Status, rec.AmountUsd, metadata, time.Now())
	if err != nil {
		return nil, false, fmt.Errorf("store: create tx record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		existing, err := r.BySignalStep(ctx, rec.SignalID, rec.StepIndex)
		return existing, false, err
	}

	created, err := r.BySignalStep(ctx, rec.SignalID, rec.StepIndex)
	return created, true, err
}

// UpdateStatus transitions a TxRecord's status — its only mutable field
// besides gas cost, tx hash and confirmation time.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, signalID string, stepIndex types.StepIndex, status types.TxStatus, txHash string, gasCostUsd float64, confirmed bool) error {
	var confirmedAt any
	if confirmed {
		confirmedAt = time.Now()
	}
	_, err := r.client.db.ExecContext(ctx, `
		UPDATE transactions SET status = $3, tx_hash = COALESCE(NULLIF($4, ''), tx_hash), gas_cost_usd = $5, confirmed_at = COALESCE($6, confirmed_at)
		WHERE signal_id = $1 AND step_index = $2`,
		signalID, stepIndex, status, txHash, gasCostUsd, confirmedAt)
	if err != nil {
		return fmt.Errorf("store: update tx status: %w", err)
	}
	return nil
}

// BySignalStep loads a single TxRecord by its idempotency key.
func (r *TransactionRepository) BySignalStep(ctx context.Context, signalID string, stepIndex types.StepIndex) (*types.TxRecord, error) {
	row := r.client.db.QueryRowContext(ctx, `
		SELECT chain_id, signal_id, step_index, COALESCE(tx_hash,''), pool_id, COALESCE(position_id::text,''), tx_type, status, amount_usd, COALESCE(gas_cost_usd, 0), metadata, created_at, confirmed_at
		FROM transactions WHERE signal_id = $1 AND step_index = $2`, signalID, stepIndex)
	return scanTxRecord(row)
}

// BySignal loads every TxRecord for a signal, in step order — used to
// detect whether a signal has already been planned (§4.10 step 1).
func (r *TransactionRepository) BySignal(ctx context.Context, signalID string) ([]types.TxRecord, error) {
	rows, err := r.client.db.QueryContext(ctx, `
		SELECT chain_id, signal_id, step_index, COALESCE(tx_hash,''), pool_id, COALESCE(position_id::text,''), tx_type, status, amount_usd, COALESCE(gas_cost_usd, 0), metadata, created_at, confirmed_at
		FROM transactions WHERE signal_id = $1 ORDER BY step_index`, signalID)
	if err != nil {
		return nil, fmt.Errorf("store: list tx records: %w", err)
	}
	defer rows.Close()

	var out []types.TxRecord
	for rows.Next() {
		rec, err := scanTxRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DailyConfirmedUsd sums confirmed + pending amountUsd over the trailing
// 24h window, for PolicyGate's rolling daily cap (§4.11).
func (r *TransactionRepository) DailyConfirmedUsd(ctx context.Context, since time.Time) (float64, error) {
	var total sql.NullFloat64
	err := r.client.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_usd), 0) FROM transactions
		WHERE created_at >= $1 AND status IN ('CONFIRMED', 'SUBMITTED', 'SIMULATING', 'PENDING')`, since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("store: daily usd sum: %w", err)
	}
	return total.Float64, nil
}

func scanTxRecord(row scanner) (*types.TxRecord, error) {
	var rec types.TxRecord
	var chain, positionID string
	var metadata []byte
	var confirmedAt sql.NullTime

	if err := row.Scan(&chain, &rec.SignalID, &rec.StepIndex, &rec.TxHash, &rec.PoolID, &positionID, &rec.Kind, &rec.Status, &rec.AmountUsd, &rec.GasCostUsd, &metadata, &rec.CreatedAt, &confirmedAt); err != nil {
		return nil, fmt.Errorf("store: scan tx record: %w", err)
	}
	rec.Chain = types.ChainID(chain)
	rec.PositionID = positionID
	if confirmedAt.Valid {
		rec.ConfirmedAt = &confirmedAt.Time
	}
	if len(metadata) > 0 {
		_ = json.Unmarshal(metadata, &rec.Metadata)
	}
	return &rec, nil
}

func nullableStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
