// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/VA7DBI/tokenAPI/metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// ServiceConfig holds the token policy. It is fixed at construction time.
type ServiceConfig struct {
	// DefaultTTL applies when CreateToken is called with a zero ttl.
	DefaultTTL time.Duration
	// RenewalWindow applies when ValidateAndExtendToken is called with a
	// zero renewal.
	RenewalWindow time.Duration
	// PreventMultipleLogin revokes an owner's usable tokens whenever a new
	// one is issued.
	PreventMultipleLogin bool
}

// Service implements the token lifecycle on top of a TokenStore. It keeps
// no token state of its own; every call goes to the store.
type Service struct {
	store  TokenStore
	cfg    ServiceConfig
	logger hclog.Logger
	now    Clock
}

func NewService(store TokenStore, cfg ServiceConfig, logger hclog.Logger, now Clock) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("tokens"),
		now:    defaultClock(now),
	}
}

func (s *Service) Config() ServiceConfig {
	return s.cfg
}

func observe(operation string) *prometheus.Timer {
	return prometheus.NewTimer(metrics.StoreDuration.WithLabelValues(operation))
}

// CreateToken issues a token for owner. A zero ttl selects the default; a
// negative one yields a token that is already expired. Input validation is
// left to the caller.
func (s *Service) CreateToken(ctx context.Context, owner string, ttl time.Duration, deviceInfo string) (*Token, error) {
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}

	token, err := NewToken(owner, ttl, deviceInfo, s.now())
	if err != nil {
		return nil, err
	}

	if s.cfg.PreventMultipleLogin {
		timer := observe("replace")
		err = s.store.ReplaceOwnerTokens(ctx, token)
		timer.ObserveDuration()
	} else {
		timer := observe("save")
		err = s.store.Save(ctx, token)
		timer.ObserveDuration()
	}
	if err != nil {
		s.logger.Error("token issue failed", "owner", owner, "error", err)
		return nil, err
	}

	metrics.TokensIssued.WithLabelValues(strconv.FormatBool(s.cfg.PreventMultipleLogin)).Inc()
	s.logger.Info("token issued", "owner", owner, "token_id", token.ID, "expires", token.ExpireTime)
	return token, nil
}

// FindToken returns the usable token with the given value, or ErrNotFound.
func (s *Service) FindToken(ctx context.Context, value string) (*Token, error) {
	defer observe("find_by_value").ObserveDuration()
	return s.store.FindByValue(ctx, value)
}

// FindTokensByOwner returns the owner's usable tokens, newest first.
func (s *Service) FindTokensByOwner(ctx context.Context, owner string) ([]*Token, error) {
	defer observe("find_by_owner").ObserveDuration()
	return s.store.FindValidByOwner(ctx, owner)
}

// ValidateToken reports whether an already fetched token is usable now.
func (s *Service) ValidateToken(token *Token) bool {
	return token.Usable(s.now())
}

// ValidateAndExtendToken looks up a usable token, records the access and
// slides its expiry forward by renewal. A zero renewal selects the
// configured window and an empty ip leaves LastIP untouched.
func (s *Service) ValidateAndExtendToken(ctx context.Context, value string, renewal time.Duration, ip string) (*Token, error) {
	if renewal == 0 {
		renewal = s.cfg.RenewalWindow
	}

	token, err := s.FindToken(ctx, value)
	if err == nil && !s.ValidateToken(token) {
		err = ErrNotFound
	}
	if err != nil {
		s.recordValidation(err)
		return nil, err
	}

	now := s.now()
	token.Touch(ip, now)
	token.Extend(renewal, now)

	timer := observe("renew")
	err = s.store.Renew(ctx, token)
	timer.ObserveDuration()
	if err != nil {
		// Revoked, expired or swept since the lookup.
		s.recordValidation(err)
		return nil, err
	}

	s.recordValidation(nil)
	s.logger.Debug("token renewed", "token_id", token.ID, "owner", token.Owner, "expires", token.ExpireTime)
	return token, nil
}

func (s *Service) recordValidation(err error) {
	switch {
	case err == nil:
		metrics.TokenValidations.WithLabelValues(metrics.ResultValid).Inc()
	case errors.Is(err, ErrNotFound):
		metrics.TokenValidations.WithLabelValues(metrics.ResultInvalid).Inc()
	default:
		metrics.TokenValidations.WithLabelValues(metrics.ResultError).Inc()
		s.logger.Error("token validation failed", "error", err)
	}
}

// RevokeToken marks the token invalid. Revoking a revoked token is a no-op.
func (s *Service) RevokeToken(ctx context.Context, token *Token) error {
	if !token.Valid {
		return nil
	}

	token.Valid = false
	defer observe("save").ObserveDuration()
	if err := s.store.Save(ctx, token); err != nil {
		token.Valid = true
		return err
	}

	metrics.TokensRevoked.Inc()
	s.logger.Info("token revoked", "token_id", token.ID, "owner", token.Owner)
	return nil
}

// ActivateToken is the administrative override that makes a revoked token
// valid again. Nothing in the automatic flows calls it.
func (s *Service) ActivateToken(ctx context.Context, token *Token) error {
	if token.Valid {
		return nil
	}

	token.Valid = true
	defer observe("save").ObserveDuration()
	if err := s.store.Save(ctx, token); err != nil {
		token.Valid = false
		return err
	}

	s.logger.Warn("token reactivated", "token_id", token.ID, "owner", token.Owner)
	return nil
}

// RevokeOwnedToken revokes the owner's usable token with the given id. A
// token belonging to someone else is reported as ErrNotFound.
func (s *Service) RevokeOwnedToken(ctx context.Context, owner string, id int64) error {
	tokens, err := s.FindTokensByOwner(ctx, owner)
	if err != nil {
		return err
	}
	for _, token := range tokens {
		if token.ID == id {
			return s.RevokeToken(ctx, token)
		}
	}
	return ErrNotFound
}

// DeleteToken removes the record outright.
func (s *Service) DeleteToken(ctx context.Context, token *Token) error {
	defer observe("remove").ObserveDuration()
	if err := s.store.Remove(ctx, token); err != nil {
		return err
	}

	metrics.TokensDeleted.Inc()
	s.logger.Info("token deleted", "token_id", token.ID, "owner", token.Owner)
	return nil
}

// CleanupExpiredTokens deletes every expired or revoked token and returns
// how many were removed.
func (s *Service) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	timer := observe("sweep")
	removed, err := s.store.SweepExpired(ctx)
	timer.ObserveDuration()
	if err != nil {
		s.logger.Error("token cleanup failed", "error", err)
		return 0, err
	}

	metrics.TokensSwept.Add(float64(removed))
	s.logger.Info("expired tokens removed", "count", removed)
	return removed, nil
}

// CountExpiredTokens returns how many tokens CleanupExpiredTokens would
// remove, without removing them.
func (s *Service) CountExpiredTokens(ctx context.Context) (int64, error) {
	defer observe("count").ObserveDuration()
	return s.store.CountExpired(ctx)
}
