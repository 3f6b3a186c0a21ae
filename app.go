// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/VA7DBI/tokenAPI/auth"
	"github.com/VA7DBI/tokenAPI/config"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
)

// errInvalidInput marks issuance requests rejected before reaching the
// token service.
var errInvalidInput = errors.New("invalid input")

// application holds the wired dependencies shared by every command.
type application struct {
	cfg    *config.Config
	logger hclog.Logger
	db     *sql.DB
	redis  *redis.Client
	store  auth.TokenStore
	tokens *auth.Service
	users  auth.UserLoader
}

func newLogger(cfg *config.Config) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "tokenapi",
		Level:      hclog.LevelFromString(cfg.Log.Level),
		JSONFormat: cfg.Log.JSON,
		Output:     os.Stderr,
	})
}

func serviceConfig(cfg *config.Config) auth.ServiceConfig {
	return auth.ServiceConfig{
		DefaultTTL:           cfg.Token.TTL(),
		RenewalWindow:        cfg.Token.Renewal(),
		PreventMultipleLogin: cfg.Token.SingleSession(),
	}
}

func newApplication(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*application, error) {
	a := &application{cfg: cfg, logger: logger}

	needsPostgres := cfg.Store.Backend == "postgres" || cfg.Users.Postgres.Enabled
	if needsPostgres {
		db, err := auth.OpenPostgres(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		a.db = db
	}

	switch cfg.Store.Backend {
	case "postgres":
		a.store = auth.NewPostgresTokenStore(a.db, nil)
	case "redis":
		client, err := auth.OpenRedis(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		a.store = auth.NewRedisTokenStore(client, cfg.Store.Redis.KeyPrefix, nil)
	case "memory":
		logger.Warn("using in-memory token store, tokens will not survive a restart")
		a.store = auth.NewMemoryTokenStore(nil)
	default:
		a.Close()
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	a.tokens = auth.NewService(a.store, serviceConfig(cfg), logger, nil)
	a.users = userLoader(cfg, a.db)
	return a, nil
}

func userLoader(cfg *config.Config, db *sql.DB) auth.UserLoader {
	chain := auth.ChainUserLoader{}
	if len(cfg.Users.Static) > 0 {
		chain = append(chain, auth.StaticUserLoader(cfg.Users.Static))
	}
	if cfg.Users.Postgres.Enabled && db != nil {
		chain = append(chain, auth.NewPostgresUserLoader(db, cfg.Users.Postgres.Query))
	}
	return chain
}

func (a *application) Close() error {
	var result *multierror.Error
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing postgres: %w", err))
		}
	}
	return result.ErrorOrNil()
}

// validateIssue checks issuance input. A nil ttl selects the configured
// default.
func validateIssue(cfg *config.Config, identifier string, ttlSeconds *int, deviceInfo string) error {
	if strings.TrimSpace(identifier) == "" {
		return fmt.Errorf("%w: identifier must not be blank", errInvalidInput)
	}
	if ttlSeconds != nil && *ttlSeconds <= 0 {
		return fmt.Errorf("%w: expires must be a positive number of seconds", errInvalidInput)
	}
	if utf8.RuneCountInString(deviceInfo) > cfg.Token.MaxDeviceInfoLength {
		return fmt.Errorf("%w: device info longer than %d characters", errInvalidInput, cfg.Token.MaxDeviceInfoLength)
	}
	return nil
}

// issueToken validates the request, resolves the identity and creates a
// token for it.
func (a *application) issueToken(ctx context.Context, identifier string, ttlSeconds *int, deviceInfo string) (*auth.Token, error) {
	if err := validateIssue(a.cfg, identifier, ttlSeconds, deviceInfo); err != nil {
		return nil, err
	}

	owner, err := a.users.LoadUser(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var ttl time.Duration
	if ttlSeconds != nil {
		ttl = time.Duration(*ttlSeconds) * time.Second
	}
	return a.tokens.CreateToken(ctx, owner, ttl, deviceInfo)
}
