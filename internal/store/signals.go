// Copyright 2025 Certen Protocol
//
// SignalQueue for durable signal polling and claiming.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/certen/yield-orchestrator/internal/types"
)

// SignalQueue implements dispatch.Source over the signals table: a
// Postgres-native at-least-once queue using SELECT ... FOR UPDATE SKIP
// LOCKED so multiple orchestrator replicas can poll the same table
// without double-claiming a row, grounded on
// pkg/database/repository_anchor.go's repository-over-*sql.DB shape and
// pkg/intent/discovery.go's poll-claim-process cycle.
type SignalQueue struct {
	client       *Client
	consumerID   string
	pollInterval time.Duration
	logger       *log.Logger
}

// NewSignalQueue wires a SignalQueue. consumerID tags claimed_by so a
// stuck claim can be traced back to the replica that took it.
func NewSignalQueue(client *Client, consumerID string) *SignalQueue {
	return &SignalQueue{
		client:       client,
		consumerID:   consumerID,
		pollInterval: 2 * time.Second,
		logger:       log.New(log.Writer(), "[SignalQueue] ", log.LstdFlags),
	}
}

// Publish inserts a new signal row. The advisor/ingestion side (an
// external collaborator per §1) is expected to call this, or write
// directly to the table; it is exposed here mainly for tests and for any
// in-process signal source that wants a durable write path.
func (q *SignalQueue) Publish(ctx context.Context, s types.Signal) error {
	params, err := json.Marshal(s.Params)
	if err != nil {
		return fmt.Errorf("store: marshal signal params: %w", err)
	}
	_, err = q.client.db.ExecContext(ctx, `
		INSERT INTO signals (signal_id, strategy_id, action, pool_id, chain_id, protocol_id, amount_usd, widen_slippage, urgency, params, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (signal_id) DO NOTHING`,
		s.SignalID, s.StrategyID, s.Action, s.PoolID, s.Chain, s.ProtocolID, s.AmountUsd, s.WidenSlippage, s.Urgency, params, s.Timestamp)
	if err != nil {
		return fmt.Errorf("store: publish signal: %w", err)
	}
	return nil
}

// Receive implements dispatch.Source: it polls until a signal is claimed
// or ctx is cancelled. The returned ack marks the row acknowledged;
// dispatch.Dispatcher calls it exactly once per delivery regardless of
// outcome. A row that is claimed but never acked keeps its claim and is
// not polled again until Requeue clears it.
func (q *SignalQueue) Receive(ctx context.Context) (types.Signal, func(), error) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		signal, ok, err := q.claimOne(ctx)
		if err != nil {
			return types.Signal{}, nil, err
		}
		if ok {
			id := signal.SignalID
			return signal, func() { q.ack(context.Background(), id) }, nil
		}

		select {
		case <-ctx.Done():
			return types.Signal{}, nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// claimOne attempts a single claim: the SELECT FOR UPDATE SKIP LOCKED
// lets concurrent pollers race over the table without blocking on each
// other's uncommitted claims.
func (q *SignalQueue) claimOne(ctx context.Context) (types.Signal, bool, error) {
	tx, err := q.client.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Signal{}, false, fmt.Errorf("store: begin claim tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT signal_id, strategy_id, action, pool_id, chain_id, protocol_id, amount_usd, widen_slippage, urgency, params, created_at
		FROM signals
		WHERE claimed_at IS NULL
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1`)

	signal, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return types.Signal{}, false, nil
	}
	if err != nil {
		return types.Signal{}, false, fmt.Errorf("store: scan claimable signal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE signals SET claimed_at = $2, claimed_by = $3 WHERE signal_id = $1`,
		signal.SignalID, time.Now(), q.consumerID); err != nil {
		return types.Signal{}, false, fmt.Errorf("store: claim signal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Signal{}, false, fmt.Errorf("store: commit claim: %w", err)
	}
	return signal, true, nil
}

func (q *SignalQueue) ack(ctx context.Context, signalID string) {
	if _, err := q.client.db.ExecContext(ctx, `UPDATE signals SET acked_at = $2 WHERE signal_id = $1`, signalID, time.Now()); err != nil {
		q.logger.Printf("ack signal %s: %v", signalID, err)
	}
}

// Requeue clears a stale claim so another poller can pick the row back
// up, used by an operator tool or a future claim-timeout sweeper; no
// caller in this core invokes it automatically yet.
func (q *SignalQueue) Requeue(ctx context.Context, signalID string) error {
	_, err := q.client.db.ExecContext(ctx, `UPDATE signals SET claimed_at = NULL, claimed_by = NULL WHERE signal_id = $1`, signalID)
	if err != nil {
		return fmt.Errorf("store: requeue signal: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (types.Signal, error) {
	var (
		s         types.Signal
		action    string
		urgency   string
		paramsRaw []byte
	)
	if err := row.Scan(&s.SignalID, &s.StrategyID, &action, &s.PoolID, &s.Chain, &s.ProtocolID, &s.AmountUsd, &s.WidenSlippage, &urgency, &paramsRaw, &s.Timestamp); err != nil {
		return types.Signal{}, err
	}
	s.Action = types.Action(action)
	s.Urgency = types.Urgency(urgency)
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &s.Params); err != nil {
			return types.Signal{}, fmt.Errorf("store: unmarshal signal params: %w", err)
		}
	}
	return s, nil
}
