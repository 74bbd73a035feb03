// Copyright 2025 Certen Protocol
//
// Unit tests for the SignalQueue.

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/types"
)

func newMockQueue(t *testing.T) (*SignalQueue, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	q := NewSignalQueue(&Client{db: db}, "consumer-1")
	q.pollInterval = time.Millisecond
	return q, mock
}

func TestPublish_InsertsSignalRow(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`INSERT INTO signals`).
		WithArgs("sig-1", "strategy-a", types.ActionEnter, "aave-v3-usdc", types.ChainEthereum, "aave-v3",
			1000.0, false, types.UrgencyNormal, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := q.Publish(context.Background(), types.Signal{
		SignalID:   "sig-1",
		StrategyID: "strategy-a",
		Action:     types.ActionEnter,
		PoolID:     "aave-v3-usdc",
		Chain:      types.ChainEthereum,
		ProtocolID: "aave-v3",
		AmountUsd:  1000.0,
		Urgency:    types.UrgencyNormal,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceive_ClaimsAvailableRowAndAcks(t *testing.T) {
	q, mock := newMockQueue(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"signal_id", "strategy_id", "action", "pool_id", "chain_id", "protocol_id",
		"amount_usd", "widen_slippage", "urgency", "params", "created_at",
	}).AddRow("sig-1", "strategy-a", string(types.ActionEnter), "aave-v3-usdc", string(types.ChainEthereum),
		"aave-v3", 1000.0, false, string(types.UrgencyNormal), []byte(`{}`), now)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM signals`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE signals SET claimed_at`).
		WithArgs("sig-1", sqlmock.AnyArg(), "consumer-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectExec(`UPDATE signals SET acked_at`).
		WithArgs("sig-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	signal, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "sig-1", signal.SignalID)
	require.Equal(t, types.ActionEnter, signal.Action)

	ack()
	time.Sleep(20 * time.Millisecond) // ack fires against a background context, detached from the test's
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReceive_PollsAgainWhenNothingClaimable(t *testing.T) {
	q, mock := newMockQueue(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM signals`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	rows := sqlmock.NewRows([]string{
		"signal_id", "strategy_id", "action", "pool_id", "chain_id", "protocol_id",
		"amount_usd", "widen_slippage", "urgency", "params", "created_at",
	}).AddRow("sig-2", "strategy-a", string(types.ActionExit), "aave-v3-usdc", string(types.ChainEthereum),
		"aave-v3", 500.0, false, string(types.UrgencyHigh), []byte(`{}`), now)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM signals`).WillReturnRows(rows)
	mock.ExpectExec(`UPDATE signals SET claimed_at`).
		WithArgs("sig-2", sqlmock.AnyArg(), "consumer-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	signal, _, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "sig-2", signal.SignalID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequeue_ClearsClaim(t *testing.T) {
	q, mock := newMockQueue(t)

	mock.ExpectExec(`UPDATE signals SET claimed_at = NULL, claimed_by = NULL`).
		WithArgs("sig-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := q.Requeue(context.Background(), "sig-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
