// Copyright 2025 Certen Protocol
//
// Unit tests for the pending-signature bridge.

package execution

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/certen/yield-orchestrator/internal/store"
	"github.com/certen/yield-orchestrator/internal/types"
)

func newMockBridge(t *testing.T, ttl time.Duration) (*PendingSignatureBridge, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := store.NewPendingSignatureRepository(store.NewClientFromDB(db))
	return &PendingSignatureBridge{repo: repo, ttl: ttl}, mock
}

func pendingRow(id string, status types.PendingStatus, signature string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "chain_id", "tx_type", "amount_usd", "payload", "status", "signature", "created_at", "updated_at",
	}).AddRow(id, "ethereum", string(types.StepDeposit), 100.0, []byte(`{}`), string(status), signature, time.Now(), time.Now())
}

func TestAwaitSignature_ReturnsHashOnceBroadcasted(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Hour)

	mock.ExpectQuery(`INSERT INTO pending_signatures`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("ps-1", time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT .* FROM pending_signatures WHERE id = \$1`).
		WithArgs("ps-1").
		WillReturnRows(pendingRow("ps-1", types.PendingSigBroadcasted, "0xhash"))

	txID, err := bridge.AwaitSignature(context.Background(), types.ChainEthereum, types.StepDeposit, 100, types.EvmPayload{})
	require.NoError(t, err)
	require.Equal(t, "0xhash", txID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAwaitSignature_RejectedReturnsPolicyRejectionError(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Hour)

	mock.ExpectQuery(`INSERT INTO pending_signatures`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("ps-2", time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT .* FROM pending_signatures WHERE id = \$1`).
		WithArgs("ps-2").
		WillReturnRows(pendingRow("ps-2", types.PendingSigRejected, ""))

	_, err := bridge.AwaitSignature(context.Background(), types.ChainEthereum, types.StepDeposit, 100, types.EvmPayload{})
	require.Error(t, err)
	require.Equal(t, KindPolicyRejection, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAwaitSignature_TTLElapsedMarksExpiredAndTimesOut(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Millisecond)

	mock.ExpectQuery(`INSERT INTO pending_signatures`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("ps-3", time.Now().Add(-time.Hour), time.Now()))
	mock.ExpectQuery(`SELECT .* FROM pending_signatures WHERE id = \$1`).
		WithArgs("ps-3").
		WillReturnRows(pendingRow("ps-3", types.PendingSigPending, ""))
	mock.ExpectExec(`UPDATE pending_signatures SET status = 'expired'`).
		WithArgs("ps-3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := bridge.AwaitSignature(context.Background(), types.ChainEthereum, types.StepDeposit, 100, types.EvmPayload{})
	require.Error(t, err)
	require.Equal(t, KindTimeout, KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAwaitSignature_ContextCancelledReturnsContextErr(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Hour)

	mock.ExpectQuery(`INSERT INTO pending_signatures`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("ps-4", time.Now(), time.Now()))
	mock.ExpectQuery(`SELECT .* FROM pending_signatures WHERE id = \$1`).
		WithArgs("ps-4").
		WillReturnRows(pendingRow("ps-4", types.PendingSigPending, ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := bridge.AwaitSignature(ctx, types.ChainEthereum, types.StepDeposit, 100, types.EvmPayload{})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBroadcastAndReject_DelegateToRepository(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Hour)

	mock.ExpectExec(`UPDATE pending_signatures SET status = 'broadcasted'`).
		WithArgs("ps-5", "0xhash").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, bridge.Broadcast(context.Background(), "ps-5", "0xhash"))

	mock.ExpectExec(`UPDATE pending_signatures SET status = 'rejected'`).
		WithArgs("ps-6").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, bridge.Reject(context.Background(), "ps-6"))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepExpired_ReturnsExpiredIDs(t *testing.T) {
	bridge, mock := newMockBridge(t, time.Hour)

	mock.ExpectQuery(`UPDATE pending_signatures SET status = 'expired'`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ps-7").AddRow("ps-8"))

	ids, err := bridge.SweepExpired(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ps-7", "ps-8"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
