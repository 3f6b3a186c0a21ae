// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/VA7DBI/tokenAPI/config"
	"github.com/lib/pq"
)

const tokenColumns = `id, token, owner, create_time, expire_time, last_access_time, last_ip, device_info, valid`

const (
	insertTokenQuery = `INSERT INTO access_tokens (token, owner, create_time, expire_time, last_access_time, last_ip, device_info, valid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	updateTokenQuery = `UPDATE access_tokens
		SET expire_time = $2, last_access_time = $3, last_ip = $4, valid = $5
		WHERE id = $1`
	renewTokenQuery = `UPDATE access_tokens
		SET expire_time = $2, last_access_time = $3, last_ip = $4
		WHERE id = $1 AND valid AND expire_time > $5`
	deleteTokenQuery      = `DELETE FROM access_tokens WHERE id = $1`
	findByValueQuery      = `SELECT ` + tokenColumns + ` FROM access_tokens WHERE token = $1 AND valid AND expire_time > $2`
	findByIDQuery         = `SELECT ` + tokenColumns + ` FROM access_tokens WHERE id = $1`
	findValidByOwnerQuery = `SELECT ` + tokenColumns + ` FROM access_tokens
		WHERE owner = $1 AND valid AND expire_time > $2
		ORDER BY create_time DESC, id DESC`
	lockOwnerQuery   = `SELECT pg_advisory_xact_lock(hashtext($1))`
	revokeOwnerQuery = `UPDATE access_tokens SET valid = false WHERE owner = $1 AND valid AND expire_time > $2`
	sweepQuery       = `DELETE FROM access_tokens WHERE expire_time <= $1 OR NOT valid`
	countSweepQuery  = `SELECT COUNT(*) FROM access_tokens WHERE expire_time <= $1 OR NOT valid`
)

// uniqueViolation is the SQLSTATE postgres reports for a unique index clash.
const uniqueViolation = "23505"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresTokenStore implements TokenStore for PostgreSQL
type PostgresTokenStore struct {
	db  *sql.DB
	now Clock
}

// OpenPostgres connects to the database described by cfg and checks it is reachable.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return db, nil
}

func NewPostgresTokenStore(db *sql.DB, now Clock) *PostgresTokenStore {
	return &PostgresTokenStore{
		db:  db,
		now: defaultClock(now),
	}
}

func (s *PostgresTokenStore) Save(ctx context.Context, token *Token) error {
	if token.ID == 0 {
		return s.insert(ctx, s.db, token)
	}

	res, err := s.db.ExecContext(ctx, updateTokenQuery,
		token.ID, token.ExpireTime, nullTime(token), nullString(token.LastIP), token.Valid)
	if err != nil {
		return fmt.Errorf("updating token %d: %w", token.ID, err)
	}
	return expectRow(res)
}

func (s *PostgresTokenStore) Renew(ctx context.Context, token *Token) error {
	res, err := s.db.ExecContext(ctx, renewTokenQuery,
		token.ID, token.ExpireTime, nullTime(token), nullString(token.LastIP), s.now())
	if err != nil {
		return fmt.Errorf("renewing token %d: %w", token.ID, err)
	}
	return expectRow(res)
}

func (s *PostgresTokenStore) insert(ctx context.Context, q queryer, token *Token) error {
	err := q.QueryRowContext(ctx, insertTokenQuery,
		token.Value, token.Owner, token.CreateTime, token.ExpireTime,
		nullTime(token), nullString(token.LastIP), nullString(token.DeviceInfo), token.Valid,
	).Scan(&token.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateValue
		}
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

func (s *PostgresTokenStore) Remove(ctx context.Context, token *Token) error {
	res, err := s.db.ExecContext(ctx, deleteTokenQuery, token.ID)
	if err != nil {
		return fmt.Errorf("deleting token %d: %w", token.ID, err)
	}
	return expectRow(res)
}

func (s *PostgresTokenStore) FindByValue(ctx context.Context, value string) (*Token, error) {
	return scanToken(s.db.QueryRowContext(ctx, findByValueQuery, value, s.now()))
}

func (s *PostgresTokenStore) FindByID(ctx context.Context, id int64) (*Token, error) {
	return scanToken(s.db.QueryRowContext(ctx, findByIDQuery, id))
}

func (s *PostgresTokenStore) FindValidByOwner(ctx context.Context, owner string) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, findValidByOwnerQuery, owner, s.now())
	if err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tokens: %w", err)
	}
	return tokens, nil
}

// ReplaceOwnerTokens holds a transaction-scoped advisory lock on the owner
// so concurrent replacements for the same owner run one after the other.
func (s *PostgresTokenStore) ReplaceOwnerTokens(ctx context.Context, token *Token) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, lockOwnerQuery, token.Owner); err != nil {
			return fmt.Errorf("locking owner: %w", err)
		}
		if _, err := tx.ExecContext(ctx, revokeOwnerQuery, token.Owner, s.now()); err != nil {
			return fmt.Errorf("revoking owner tokens: %w", err)
		}
		return s.insert(ctx, tx, token)
	})
	if err != nil {
		token.ID = 0
	}
	return err
}

func (s *PostgresTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sweepQuery, s.now())
	if err != nil {
		return 0, fmt.Errorf("sweeping tokens: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresTokenStore) CountExpired(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countSweepQuery, s.now()).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting tokens: %w", err)
	}
	return count, nil
}

func (s *PostgresTokenStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction, committing on success and rolling back
// on error or panic.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	return fn(tx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*Token, error) {
	var (
		token      Token
		lastAccess sql.NullTime
		lastIP     sql.NullString
		device     sql.NullString
	)
	err := row.Scan(&token.ID, &token.Value, &token.Owner, &token.CreateTime, &token.ExpireTime,
		&lastAccess, &lastIP, &device, &token.Valid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading token: %w", err)
	}

	if lastAccess.Valid {
		token.LastAccessTime = &lastAccess.Time
	}
	token.LastIP = lastIP.String
	token.DeviceInfo = device.String
	return &token, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(token *Token) sql.NullTime {
	if token.LastAccessTime == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *token.LastAccessTime, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
