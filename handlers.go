// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/VA7DBI/tokenAPI/auth"
	"github.com/VA7DBI/tokenAPI/middleware"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// UserInfoResponse identifies the authenticated owner
type UserInfoResponse struct {
	Identifier string `json:"identifier"`
}

// TokenSummary is a token as shown to its owner, with the value masked
type TokenSummary struct {
	ID             int64      `json:"id"`
	Token          string     `json:"token"`
	CreateTime     time.Time  `json:"create_time"`
	ExpireTime     time.Time  `json:"expire_time"`
	LastAccessTime *time.Time `json:"last_access_time"`
	LastIP         string     `json:"last_ip,omitempty"`
	DeviceInfo     string     `json:"device_info,omitempty"`
}

// RevokeResponse confirms a revocation
type RevokeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GenerateTokenRequest asks for a token on behalf of a user
type GenerateTokenRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	ExpiresIn  *int   `json:"expires_in" binding:"omitempty,gt=0"`
	DeviceInfo string `json:"device_info"`
}

// GenerateTokenResponse carries a newly issued token. This is the only
// response that ever contains a full token value.
type GenerateTokenResponse struct {
	Token      string    `json:"token"`
	ExpireTime time.Time `json:"expire_time"`
	CreateTime time.Time `json:"create_time"`
	UserID     string    `json:"user_id"`
	DeviceInfo string    `json:"device_info,omitempty"`
}

type tokenHandlers struct {
	app    *application
	logger hclog.Logger
}

func newTokenHandlers(app *application) *tokenHandlers {
	return &tokenHandlers{app: app, logger: app.logger.Named("api")}
}

// @Summary     Current user
// @Description Identify the owner of the presented token
// @Tags        tokens
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} UserInfoResponse
// @Failure     401 {object} ErrorResponse
// @Router      /api/user [get]
func (h *tokenHandlers) UserInfo(c *gin.Context) {
	owner, ok := middleware.Owner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}
	c.JSON(http.StatusOK, UserInfoResponse{Identifier: owner})
}

// @Summary     List my tokens
// @Description List the caller's usable tokens with their values masked
// @Tags        tokens
// @Produce     json
// @Security    BearerAuth
// @Success     200 {array}  TokenSummary
// @Failure     401 {object} ErrorResponse
// @Router      /api/tokens [get]
func (h *tokenHandlers) ListTokens(c *gin.Context) {
	owner, ok := middleware.Owner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	tokens, err := h.app.tokens.FindTokensByOwner(c.Request.Context(), owner)
	if err != nil {
		h.internalError(c, "listing tokens failed", err)
		return
	}

	result := make([]TokenSummary, 0, len(tokens))
	for _, token := range tokens {
		result = append(result, TokenSummary{
			ID:             token.ID,
			Token:          token.Masked(),
			CreateTime:     token.CreateTime,
			ExpireTime:     token.ExpireTime,
			LastAccessTime: token.LastAccessTime,
			LastIP:         token.LastIP,
			DeviceInfo:     token.DeviceInfo,
		})
	}
	c.JSON(http.StatusOK, result)
}

// @Summary     Revoke one of my tokens
// @Tags        tokens
// @Produce     json
// @Security    BearerAuth
// @Param       id  path     int true "Token ID"
// @Success     200 {object} RevokeResponse
// @Failure     401 {object} ErrorResponse
// @Failure     404 {object} ErrorResponse
// @Router      /api/token/revoke/{id} [post]
func (h *tokenHandlers) RevokeToken(c *gin.Context) {
	owner, ok := middleware.Owner(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Token not found"})
		return
	}

	err = h.app.tokens.RevokeOwnedToken(c.Request.Context(), owner, id)
	if errors.Is(err, auth.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Token not found"})
		return
	}
	if err != nil {
		h.internalError(c, "revoking token failed", err)
		return
	}
	c.JSON(http.StatusOK, RevokeResponse{Success: true, Message: "Token revoked"})
}

// @Summary     Issue a token
// @Description Generate an access token for a user. Requires an admin key.
// @Tags        admin
// @Accept      json
// @Produce     json
// @Param       X-Admin-Key header string               true "Admin key"
// @Param       request     body   GenerateTokenRequest true "Token request"
// @Success     201 {object} GenerateTokenResponse
// @Failure     400 {object} ErrorResponse
// @Failure     401 {object} ErrorResponse
// @Failure     404 {object} ErrorResponse
// @Router      /admin/tokens [post]
func (h *tokenHandlers) GenerateToken(c *gin.Context) {
	var req GenerateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error()})
		return
	}

	token, err := h.app.issueToken(c.Request.Context(), req.Identifier, req.ExpiresIn, req.DeviceInfo)
	switch {
	case errors.Is(err, errInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, auth.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	case err != nil:
		h.internalError(c, "issuing token failed", err)
		return
	}

	c.JSON(http.StatusCreated, GenerateTokenResponse{
		Token:      token.Value,
		ExpireTime: token.ExpireTime,
		CreateTime: token.CreateTime,
		UserID:     token.Owner,
		DeviceInfo: token.DeviceInfo,
	})
}

func (h *tokenHandlers) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status string `json:"status"`
}

// @Summary     Health check endpoint
// @Description Get API health status
// @Tags        health
// @Produce     json
// @Success     200 {object} HealthResponse
// @Router      /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(200, HealthResponse{Status: "ok"})
}
