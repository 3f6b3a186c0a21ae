// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"sort"
	"time"
)

// TokenStore defines the persistence operations for access tokens
type TokenStore interface {
	// Save inserts a token with a zero ID, assigning one, or updates the
	// mutable fields of an existing token.
	Save(ctx context.Context, token *Token) error
	// Renew writes the expiry and last access fields of a token that is
	// still usable and never changes Valid. ErrNotFound when the stored
	// token is gone, revoked or expired.
	Renew(ctx context.Context, token *Token) error
	Remove(ctx context.Context, token *Token) error
	// FindByValue returns the token only while it is usable.
	FindByValue(ctx context.Context, value string) (*Token, error)
	// FindByID bypasses the usability filter.
	FindByID(ctx context.Context, id int64) (*Token, error)
	// FindValidByOwner returns usable tokens, most recently created first.
	FindValidByOwner(ctx context.Context, owner string) ([]*Token, error)
	// ReplaceOwnerTokens revokes every usable token of token.Owner and
	// inserts token as one atomic operation.
	ReplaceOwnerTokens(ctx context.Context, token *Token) error
	// SweepExpired deletes expired and revoked tokens in bulk.
	SweepExpired(ctx context.Context) (int64, error)
	// CountExpired counts the rows SweepExpired would delete.
	CountExpired(ctx context.Context) (int64, error)
}

// Clock returns the current time. Stores and the service take one so tests
// can control expiry.
type Clock func() time.Time

func defaultClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// sortNewestFirst orders tokens by create time, then id, descending.
func sortNewestFirst(tokens []*Token) {
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].CreateTime.Equal(tokens[j].CreateTime) {
			return tokens[i].ID > tokens[j].ID
		}
		return tokens[i].CreateTime.After(tokens[j].CreateTime)
	})
}
