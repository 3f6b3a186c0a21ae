// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenBytes is the amount of entropy in a token value. Values are hex
// encoded, so every token is 2*TokenBytes characters long.
const TokenBytes = 32

// Token is a server-side access token record.
type Token struct {
	ID             int64
	Value          string
	Owner          string
	CreateTime     time.Time
	ExpireTime     time.Time
	LastAccessTime *time.Time
	LastIP         string // empty until a caller supplies one
	DeviceInfo     string
	Valid          bool
}

// NewToken builds an unsaved token for owner that expires ttl after now.
func NewToken(owner string, ttl time.Duration, deviceInfo string, now time.Time) (*Token, error) {
	value, err := GenerateValue()
	if err != nil {
		return nil, err
	}
	return &Token{
		Value:      value,
		Owner:      owner,
		CreateTime: now,
		ExpireTime: now.Add(ttl),
		DeviceInfo: deviceInfo,
		Valid:      true,
	}, nil
}

// GenerateValue returns a fresh random token value.
func GenerateValue() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IsExpired reports whether the token is past its expiry at now.
func (t *Token) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpireTime)
}

// Usable reports whether the token may authenticate a request at now.
func (t *Token) Usable(now time.Time) bool {
	return t.Valid && !t.IsExpired(now)
}

// Extend pushes the expiry delta past the later of now and the current expiry,
// so an already-expired token restarts from now instead of a stale timestamp.
func (t *Token) Extend(delta time.Duration, now time.Time) {
	base := t.ExpireTime
	if now.After(base) {
		base = now
	}
	t.ExpireTime = base.Add(delta)
}

// Touch records an access at now, and the caller's IP when one is known.
func (t *Token) Touch(ip string, now time.Time) {
	at := now
	t.LastAccessTime = &at
	if ip != "" {
		t.LastIP = ip
	}
}

// Masked returns the value with its middle hidden, for listings.
func (t *Token) Masked() string {
	if len(t.Value) <= 12 {
		return "..."
	}
	return t.Value[:8] + "..." + t.Value[len(t.Value)-4:]
}

func (t *Token) clone() *Token {
	c := *t
	if t.LastAccessTime != nil {
		at := *t.LastAccessTime
		c.LastAccessTime = &at
	}
	return &c
}
