// Copyright 2025 Certen Protocol
//
// PoolRepository for pool health score and APR lookups.

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// PoolRepository reads the pool rows the external yield-aggregator
// scraper writes. The core never writes to this table (§1: ingestion is
// an opaque external collaborator); it only reads health_score and apr.
type PoolRepository struct {
	client *Client
}

// NewPoolRepository wires a PoolRepository.
func NewPoolRepository(client *Client) *PoolRepository {
	return &PoolRepository{client: client}
}

// Pool is the subset of ingested pool data the core consumes.
type Pool struct {
	PoolID      string
	ChainID     string
	ProtocolID  string
	Apr         float64
	HealthScore float64
}

// HealthScore reads a pool's current health score, used by PolicyGate's
// entry gate (§4.11). Returns 0 if the pool is unknown, which fails the
// gate closed rather than open.
func (r *PoolRepository) HealthScore(ctx context.Context, poolID string) (float64, error) {
	var score sql.NullFloat64
	err := r.client.db.QueryRowContext(ctx, `SELECT health_score FROM pools WHERE pool_id = $1`, poolID).Scan(&score)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read pool health score: %w", err)
	}
	return score.Float64, nil
}

// APR reads a pool's current advertised APR, consumed by the
// reconciler's APR-based PnL estimator fallback (§4.13).
func (r *PoolRepository) APR(ctx context.Context, poolID string) (float64, error) {
	var apr sql.NullFloat64
	err := r.client.db.QueryRowContext(ctx, `SELECT apr FROM pools WHERE pool_id = $1`, poolID).Scan(&apr)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read pool apr: %w", err)
	}
	return apr.Float64, nil
}
