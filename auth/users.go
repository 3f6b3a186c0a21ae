// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UserLoader resolves a user identifier (such as a username) to the owner
// id tokens are issued against.
type UserLoader interface {
	LoadUser(ctx context.Context, identifier string) (string, error)
}

// StaticUserLoader resolves identities from a fixed table.
type StaticUserLoader map[string]string

func (l StaticUserLoader) LoadUser(ctx context.Context, identifier string) (string, error) {
	owner, ok := l[identifier]
	if !ok {
		return "", ErrUserNotFound
	}
	return owner, nil
}

// PostgresUserLoader resolves identities with a parameterized query that
// takes the identifier as $1 and returns the owner id.
type PostgresUserLoader struct {
	db    *sql.DB
	query string
}

func NewPostgresUserLoader(db *sql.DB, query string) *PostgresUserLoader {
	return &PostgresUserLoader{db: db, query: query}
}

func (l *PostgresUserLoader) LoadUser(ctx context.Context, identifier string) (string, error) {
	var owner string
	err := l.db.QueryRowContext(ctx, l.query, identifier).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("user lookup failed: %w", err)
	}
	return owner, nil
}

// ChainUserLoader tries each loader in turn until one knows the identifier.
type ChainUserLoader []UserLoader

func (c ChainUserLoader) LoadUser(ctx context.Context, identifier string) (string, error) {
	for _, loader := range c {
		owner, err := loader.LoadUser(ctx, identifier)
		if errors.Is(err, ErrUserNotFound) {
			continue
		}
		return owner, err
	}
	return "", ErrUserNotFound
}
