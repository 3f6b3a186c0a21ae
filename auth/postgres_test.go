// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tokenColumnNames = []string{"id", "token", "owner", "create_time", "expire_time", "last_access_time", "last_ip", "device_info", "valid"}

func setupPostgresTest(t *testing.T) (*PostgresTokenStore, sqlmock.Sqlmock, *fakeClock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("Failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := newFakeClock()
	return NewPostgresTokenStore(db, clock.Now), mock, clock
}

func TestPostgresTokenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())

		mock.ExpectQuery(insertTokenQuery).
			WithArgs(token.Value, "alice", token.CreateTime, token.ExpireTime, nil, nil, "test-device", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		require.NoError(t, store.Save(ctx, token))
		assert.Equal(t, int64(42), token.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("InsertDuplicate", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())

		mock.ExpectQuery(insertTokenQuery).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		assert.ErrorIs(t, store.Save(ctx, token), ErrDuplicateValue)
		assert.Zero(t, token.ID)
	})

	t.Run("Update", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())
		token.ID = 7
		token.Touch("10.1.2.3", clock.Now())

		mock.ExpectExec(updateTokenQuery).
			WithArgs(int64(7), token.ExpireTime, clock.Now(), "10.1.2.3", true).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Save(ctx, token))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UpdateMissing", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())
		token.ID = 7

		mock.ExpectExec(updateTokenQuery).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, store.Save(ctx, token), ErrNotFound)
	})

	t.Run("Renew", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())
		token.ID = 7
		token.Touch("10.1.2.3", clock.Now())
		token.Extend(time.Hour, clock.Now())

		mock.ExpectExec(renewTokenQuery).
			WithArgs(int64(7), token.ExpireTime, clock.Now(), "10.1.2.3", clock.Now()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, store.Renew(ctx, token))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RenewRevoked", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())
		token.ID = 7

		// The guard leaves revoked or expired rows alone.
		mock.ExpectExec(renewTokenQuery).
			WithArgs(int64(7), token.ExpireTime, nil, nil, clock.Now()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, store.Renew(ctx, token), ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FindByValue", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		now := clock.Now()
		access := now.Add(-time.Minute)

		mock.ExpectQuery(findByValueQuery).
			WithArgs("valid-token", now).
			WillReturnRows(sqlmock.NewRows(tokenColumnNames).
				AddRow(3, "valid-token", "alice", now.Add(-time.Hour), now.Add(time.Hour), access, "10.0.0.9", nil, true))

		token, err := store.FindByValue(ctx, "valid-token")
		require.NoError(t, err)
		assert.Equal(t, int64(3), token.ID)
		assert.Equal(t, "alice", token.Owner)
		require.NotNil(t, token.LastAccessTime)
		assert.Equal(t, access, *token.LastAccessTime)
		assert.Equal(t, "10.0.0.9", token.LastIP)
		assert.Empty(t, token.DeviceInfo)
		assert.True(t, token.Valid)
	})

	t.Run("FindByValueMissing", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)

		mock.ExpectQuery(findByValueQuery).
			WithArgs("invalid-token", clock.Now()).
			WillReturnRows(sqlmock.NewRows(tokenColumnNames))

		_, err := store.FindByValue(ctx, "invalid-token")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("DatabaseError", func(t *testing.T) {
		store, mock, _ := setupPostgresTest(t)

		mock.ExpectQuery(findByValueQuery).
			WillReturnError(sqlmock.ErrCancelled)

		token, err := store.FindByValue(ctx, "error-token")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
		assert.Nil(t, token)
	})

	t.Run("FindValidByOwner", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		now := clock.Now()

		mock.ExpectQuery(findValidByOwnerQuery).
			WithArgs("alice", now).
			WillReturnRows(sqlmock.NewRows(tokenColumnNames).
				AddRow(9, "newer", "alice", now, now.Add(time.Hour), nil, nil, "phone", true).
				AddRow(4, "older", "alice", now.Add(-time.Hour), now.Add(time.Hour), nil, nil, nil, true))

		tokens, err := store.FindValidByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, int64(9), tokens[0].ID)
		assert.Equal(t, "phone", tokens[0].DeviceInfo)
		assert.Nil(t, tokens[1].LastAccessTime)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("FindByID", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		now := clock.Now()

		mock.ExpectQuery(findByIDQuery).
			WithArgs(int64(5)).
			WillReturnRows(sqlmock.NewRows(tokenColumnNames).
				AddRow(5, "revoked", "alice", now, now.Add(time.Hour), nil, nil, nil, false))

		token, err := store.FindByID(ctx, 5)
		require.NoError(t, err)
		assert.False(t, token.Valid)
	})

	t.Run("ReplaceOwnerTokens", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())

		mock.ExpectBegin()
		mock.ExpectExec(lockOwnerQuery).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(revokeOwnerQuery).WithArgs("alice", clock.Now()).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectQuery(insertTokenQuery).
			WithArgs(token.Value, "alice", token.CreateTime, token.ExpireTime, nil, nil, "test-device", true).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceOwnerTokens(ctx, token))
		assert.Equal(t, int64(11), token.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ReplaceOwnerTokensRollsBack", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)
		token := newTestToken(t, "alice", time.Hour, clock.Now())

		mock.ExpectBegin()
		mock.ExpectExec(lockOwnerQuery).WithArgs("alice").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(revokeOwnerQuery).WithArgs("alice", clock.Now()).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(insertTokenQuery).WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := store.ReplaceOwnerTokens(ctx, token)
		assert.ErrorContains(t, err, "connection reset")
		assert.Zero(t, token.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Remove", func(t *testing.T) {
		store, mock, _ := setupPostgresTest(t)

		mock.ExpectExec(deleteTokenQuery).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(deleteTokenQuery).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, store.Remove(ctx, &Token{ID: 3}))
		assert.ErrorIs(t, store.Remove(ctx, &Token{ID: 3}), ErrNotFound)
	})

	t.Run("SweepExpired", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)

		mock.ExpectExec(sweepQuery).WithArgs(clock.Now()).WillReturnResult(sqlmock.NewResult(0, 3))

		removed, err := store.SweepExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), removed)
	})

	t.Run("CountExpired", func(t *testing.T) {
		store, mock, clock := setupPostgresTest(t)

		mock.ExpectQuery(countSweepQuery).
			WithArgs(clock.Now()).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

		count, err := store.CountExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
	})
}
