// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"sync"
)

// MemoryTokenStore is an in-process TokenStore for development and testing.
// Records are copied in and out so callers never share state with the store.
type MemoryTokenStore struct {
	mu      sync.Mutex
	nextID  int64
	tokens  map[int64]*Token
	byValue map[string]int64
	now     Clock
}

func NewMemoryTokenStore(now Clock) *MemoryTokenStore {
	return &MemoryTokenStore{
		tokens:  make(map[int64]*Token),
		byValue: make(map[string]int64),
		now:     defaultClock(now),
	}
}

func (m *MemoryTokenStore) Save(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(token)
}

func (m *MemoryTokenStore) save(token *Token) error {
	if token.ID == 0 {
		if _, exists := m.byValue[token.Value]; exists {
			return ErrDuplicateValue
		}
		m.nextID++
		token.ID = m.nextID
		m.tokens[token.ID] = token.clone()
		m.byValue[token.Value] = token.ID
		return nil
	}

	stored, ok := m.tokens[token.ID]
	if !ok {
		return ErrNotFound
	}
	stored.ExpireTime = token.ExpireTime
	stored.LastAccessTime = token.clone().LastAccessTime
	stored.LastIP = token.LastIP
	stored.Valid = token.Valid
	return nil
}

func (m *MemoryTokenStore) Renew(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.tokens[token.ID]
	if !ok || !stored.Usable(m.now()) {
		return ErrNotFound
	}
	stored.ExpireTime = token.ExpireTime
	stored.LastAccessTime = token.clone().LastAccessTime
	stored.LastIP = token.LastIP
	return nil
}

func (m *MemoryTokenStore) Remove(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.tokens[token.ID]
	if !ok {
		return ErrNotFound
	}
	delete(m.byValue, stored.Value)
	delete(m.tokens, token.ID)
	return nil
}

func (m *MemoryTokenStore) FindByValue(ctx context.Context, value string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	token := m.tokens[id]
	if !token.Usable(m.now()) {
		return nil, ErrNotFound
	}
	return token.clone(), nil
}

func (m *MemoryTokenStore) FindByID(ctx context.Context, id int64) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	return token.clone(), nil
}

func (m *MemoryTokenStore) FindValidByOwner(ctx context.Context, owner string) ([]*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validByOwner(owner), nil
}

func (m *MemoryTokenStore) validByOwner(owner string) []*Token {
	now := m.now()
	var result []*Token
	for _, token := range m.tokens {
		if token.Owner == owner && token.Usable(now) {
			result = append(result, token.clone())
		}
	}
	sortNewestFirst(result)
	return result
}

func (m *MemoryTokenStore) ReplaceOwnerTokens(ctx context.Context, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byValue[token.Value]; exists {
		return ErrDuplicateValue
	}
	for _, existing := range m.validByOwner(token.Owner) {
		m.tokens[existing.ID].Valid = false
	}
	return m.save(token)
}

func (m *MemoryTokenStore) SweepExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var removed int64
	for id, token := range m.tokens {
		if !token.Usable(now) {
			delete(m.byValue, token.Value)
			delete(m.tokens, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryTokenStore) CountExpired(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var count int64
	for _, token := range m.tokens {
		if !token.Usable(now) {
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored records, usable or not.
func (m *MemoryTokenStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}
