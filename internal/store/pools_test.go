// Copyright 2025 Certen Protocol
//
// Unit tests for the PoolRepository.

package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func newMockPoolRepo(t *testing.T) (*PoolRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPoolRepository(&Client{db: db}), mock
}

func TestPoolRepository_HealthScoreReturnsStoredValue(t *testing.T) {
	repo, mock := newMockPoolRepo(t)
	mock.ExpectQuery(`SELECT health_score FROM pools WHERE pool_id = \$1`).
		WithArgs("aave-v3-usdc").
		WillReturnRows(sqlmock.NewRows([]string{"health_score"}).AddRow(0.92))

	score, err := repo.HealthScore(context.Background(), "aave-v3-usdc")
	require.NoError(t, err)
	require.Equal(t, 0.92, score)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolRepository_HealthScoreUnknownPoolReturnsZero(t *testing.T) {
	repo, mock := newMockPoolRepo(t)
	mock.ExpectQuery(`SELECT health_score FROM pools WHERE pool_id = \$1`).
		WithArgs("unknown-pool").
		WillReturnError(sql.ErrNoRows)

	score, err := repo.HealthScore(context.Background(), "unknown-pool")
	require.NoError(t, err)
	require.Equal(t, 0.0, score)
}

func TestPoolRepository_APRReturnsStoredValue(t *testing.T) {
	repo, mock := newMockPoolRepo(t)
	mock.ExpectQuery(`SELECT apr FROM pools WHERE pool_id = \$1`).
		WithArgs("aave-v3-usdc").
		WillReturnRows(sqlmock.NewRows([]string{"apr"}).AddRow(0.045))

	apr, err := repo.APR(context.Background(), "aave-v3-usdc")
	require.NoError(t, err)
	require.Equal(t, 0.045, apr)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolRepository_APRUnknownPoolReturnsZero(t *testing.T) {
	repo, mock := newMockPoolRepo(t)
	mock.ExpectQuery(`SELECT apr FROM pools WHERE pool_id = \$1`).
		WithArgs("unknown-pool").
		WillReturnError(sql.ErrNoRows)

	apr, err := repo.APR(context.Background(), "unknown-pool")
	require.NoError(t, err)
	require.Equal(t, 0.0, apr)
}
