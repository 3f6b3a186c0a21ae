// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/VA7DBI/tokenAPI/auth"
	"github.com/VA7DBI/tokenAPI/config"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// Context keys set on authenticated requests
const (
	OwnerKey   = "tokenapi.owner"
	TokenIDKey = "tokenapi.token_id"
)

// AdminKeyHeader carries a static admin key.
const AdminKeyHeader = "X-Admin-Key"

// TokenValidator is the part of auth.Service the middleware needs.
type TokenValidator interface {
	ValidateAndExtendToken(ctx context.Context, value string, renewal time.Duration, ip string) (*auth.Token, error)
}

// AuthMiddleware handles bearer token authentication
type AuthMiddleware struct {
	tokens  TokenValidator
	renewal time.Duration
	logger  hclog.Logger
}

// NewAuthMiddleware creates a new auth middleware instance
func NewAuthMiddleware(cfg *config.Config, tokens TokenValidator, logger hclog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:  tokens,
		renewal: cfg.Token.Renewal(),
		logger:  logger.Named("auth"),
	}
}

// Handler returns the gin middleware handler function. Every rejection
// carries the same body so clients cannot learn why a token failed.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		value := extractToken(c)
		if value == "" {
			unauthorized(c)
			return
		}

		token, err := m.tokens.ValidateAndExtendToken(c.Request.Context(), value, m.renewal, c.ClientIP())
		if errors.Is(err, auth.ErrNotFound) {
			unauthorized(c)
			return
		}
		if err != nil {
			m.logger.Error("token validation failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.Set(OwnerKey, token.Owner)
		c.Set(TokenIDKey, token.ID)
		c.Next()
	}
}

// Owner returns the authenticated owner of the request.
func Owner(c *gin.Context) (string, bool) {
	owner, ok := c.Get(OwnerKey)
	if !ok {
		return "", false
	}
	s, ok := owner.(string)
	return s, ok && s != ""
}

// AdminKeys accepts requests carrying one of the configured admin keys.
func AdminKeys(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(AdminKeyHeader)
		if key != "" {
			for _, validKey := range cfg.Admin.Keys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
					c.Next()
					return
				}
			}
		}
		unauthorized(c)
	}
}

func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}
