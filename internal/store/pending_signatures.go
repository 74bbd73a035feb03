// Copyright 2025 Certen Protocol
//
// PendingSignatureRepository for wallet-signature-bridge records.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/yield-orchestrator/internal/types"
)

// PendingSignatureRepository persists payloads awaiting an external
// signer (§4.12).
type PendingSignatureRepository struct {
	client *Client
}

// NewPendingSignatureRepository wires a PendingSignatureRepository.
func NewPendingSignatureRepository(client *Client) *PendingSignatureRepository {
	return &PendingSignatureRepository{client: client}
}

// Create inserts a new pending row in "pending" status.
func (r *PendingSignatureRepository) Create(ctx context.Context, chain types.ChainID, kind types.StepKind, amountUsd float64, payload []byte) (*types.PendingSignature, error) {
	ps := &types.PendingSignature{
		ID:        uuid.New().String(),
		Chain:     chain,
		Kind:      kind,
		AmountUsd: amountUsd,
		Payload:   payload,
		Status:    types.PendingSigPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	err := r.client.db.QueryRowContext(ctx, `
		INSERT INTO pending_signatures (id, chain_id, tx_type, amount_usd, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		ps.ID, ps.Chain, ps.Kind, ps.AmountUsd, ps.Payload, ps.Status, ps.CreatedAt, ps.UpdatedAt,
	).Scan(&ps.ID, &ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: create pending signature: %w", err)
	}
	return ps, nil
}

// MarkBroadcasted records the externally-provided signature/hash and
// transitions the row to broadcasted, unblocking the watcher (§4.12).
func (r *PendingSignatureRepository) MarkBroadcasted(ctx context.Context, id, signatureOrHash string) error {
	_, err := r.client.db.ExecContext(ctx,
		`UPDATE pending_signatures SET status = 'broadcasted', signature = $2, updated_at = now() WHERE id = $1`,
		id, signatureOrHash)
	if err != nil {
		return fmt.Errorf("store: mark broadcasted: %w", err)
	}
	return nil
}

// MarkRejected transitions the row to rejected.
func (r *PendingSignatureRepository) MarkRejected(ctx context.Context, id string) error {
	_, err := r.client.db.ExecContext(ctx, `UPDATE pending_signatures SET status = 'rejected', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: mark rejected: %w", err)
	}
	return nil
}

// MarkExpired transitions a single row to expired, used when the caller
// already knows which row timed out rather than sweeping by age.
func (r *PendingSignatureRepository) MarkExpired(ctx context.Context, id string) error {
	_, err := r.client.db.ExecContext(ctx, `UPDATE pending_signatures SET status = 'expired', updated_at = now() WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("store: mark expired: %w", err)
	}
	return nil
}

// ExpireStale transitions every still-pending row older than ttl to
// expired, and returns their ids, per §3 invariant 6.
func (r *PendingSignatureRepository) ExpireStale(ctx context.Context, ttl time.Duration) ([]string, error) {
	rows, err := r.client.db.QueryContext(ctx, `
		UPDATE pending_signatures SET status = 'expired', updated_at = now()
		WHERE status = 'pending' AND created_at < $1
		RETURNING id`, time.Now().Add(-ttl))
	if err != nil {
		return nil, fmt.Errorf("store: expire stale pending signatures: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ByID loads a single pending signature row.
func (r *PendingSignatureRepository) ByID(ctx context.Context, id string) (*types.PendingSignature, error) {
	var ps types.PendingSignature
	var chain string
	var signature sql.NullString

	err := r.client.db.QueryRowContext(ctx, `
		SELECT id, chain_id, tx_type, amount_usd, payload, status, signature, created_at, updated_at
		FROM pending_signatures WHERE id = $1`, id).
		Scan(&ps.ID, &chain, &ps.Kind, &ps.AmountUsd, &ps.Payload, &ps.Status, &signature, &ps.CreatedAt, &ps.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: load pending signature: %w", err)
	}
	ps.Chain = types.ChainID(chain)
	ps.SignatureOrHash = signature.String
	return &ps, nil
}

// Pending lists every row still awaiting a signature, for the watcher
// loop to poll.
func (r *PendingSignatureRepository) Pending(ctx context.Context) ([]types.PendingSignature, error) {
	rows, err := r.client.db.QueryContext(ctx, `SELECT id FROM pending_signatures WHERE status = 'pending'`)
	if err != nil {
		return nil, fmt.Errorf("store: list pending signatures: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]types.PendingSignature, 0, len(ids))
	for _, id := range ids {
		ps, err := r.ByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *ps)
	}
	return out, nil
}
