// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func issueViaAPI(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/admin/tokens", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", "admin-secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateToken(t *testing.T) {
	app := newTestApplication(t)
	r := setupRouter(app)

	t.Run("Success", func(t *testing.T) {
		w := issueViaAPI(r, `{"identifier":"alice","expires_in":600,"device_info":"iPhone"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp GenerateTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Token, 64)
		assert.Equal(t, "user-1", resp.UserID)
		assert.Equal(t, "iPhone", resp.DeviceInfo)
		assert.WithinDuration(t, resp.CreateTime.Add(10*time.Minute), resp.ExpireTime, time.Second)
	})

	t.Run("DefaultExpiry", func(t *testing.T) {
		w := issueViaAPI(r, `{"identifier":"bob"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp GenerateTokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.WithinDuration(t, resp.CreateTime.Add(24*time.Hour), resp.ExpireTime, time.Second)
	})

	bad := []struct {
		name string
		body string
	}{
		{"MissingIdentifier", `{"expires_in":60}`},
		{"BlankIdentifier", `{"identifier":"  "}`},
		{"ZeroExpiry", `{"identifier":"alice","expires_in":0}`},
		{"NegativeExpiry", `{"identifier":"alice","expires_in":-60}`},
		{"LongDevice", fmt.Sprintf(`{"identifier":"alice","device_info":%q}`, strings.Repeat("d", 256))},
		{"NotJSON", `identifier=alice`},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			w := issueViaAPI(r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	t.Run("UnknownUser", func(t *testing.T) {
		w := issueViaAPI(r, `{"identifier":"mallory"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"user not found"}`, w.Body.String())
	})

	t.Run("RequiresAdminKey", func(t *testing.T) {
		w := doRequest(r, "POST", "/admin/tokens", "", `{"identifier":"alice"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestTokenLifecycleOverHTTP(t *testing.T) {
	app := newTestApplication(t)
	r := setupRouter(app)
	ctx := context.Background()

	token, err := app.tokens.CreateToken(ctx, "user-1", time.Hour, "laptop")
	require.NoError(t, err)

	t.Run("UserInfo", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/user", token.Value, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"identifier":"user-1"}`, w.Body.String())
	})

	t.Run("ValidationRenews", func(t *testing.T) {
		stored, err := app.store.FindByID(ctx, token.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.LastAccessTime)
		assert.Equal(t, "192.0.2.1", stored.LastIP)
		assert.True(t, stored.ExpireTime.After(token.ExpireTime))
	})

	t.Run("ListMasksValues", func(t *testing.T) {
		w := doRequest(r, "GET", "/api/tokens", token.Value, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), token.Value)

		var list []TokenSummary
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)
		assert.Equal(t, token.ID, list[0].ID)
		assert.Equal(t, token.Value[:8]+"..."+token.Value[60:], list[0].Token)
		assert.Equal(t, "laptop", list[0].DeviceInfo)
	})

	t.Run("RevokeForeignToken", func(t *testing.T) {
		other, err := app.tokens.CreateToken(ctx, "user-2", time.Hour, "")
		require.NoError(t, err)

		w := doRequest(r, "POST", fmt.Sprintf("/api/token/revoke/%d", other.ID), token.Value, "")
		assert.Equal(t, http.StatusNotFound, w.Code)

		missing := doRequest(r, "POST", "/api/token/revoke/99999", token.Value, "")
		assert.Equal(t, http.StatusNotFound, missing.Code)
		assert.Equal(t, w.Body.String(), missing.Body.String(), "foreign and missing ids look the same")

		garbage := doRequest(r, "POST", "/api/token/revoke/abc", token.Value, "")
		assert.Equal(t, http.StatusNotFound, garbage.Code)

		_, err = app.tokens.FindToken(ctx, other.Value)
		assert.NoError(t, err)
	})

	t.Run("RevokeOwnToken", func(t *testing.T) {
		w := doRequest(r, "POST", fmt.Sprintf("/api/token/revoke/%d", token.ID), token.Value, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"message":"Token revoked"}`, w.Body.String())

		after := doRequest(r, "GET", "/api/user", token.Value, "")
		assert.Equal(t, http.StatusUnauthorized, after.Code)

		never := doRequest(r, "GET", "/api/user", "never-issued", "")
		assert.Equal(t, after.Body.String(), never.Body.String(), "revoked and unknown tokens look the same")
	})
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApplication(t)
	r := setupRouter(app)
	_, err := app.tokens.CreateToken(context.Background(), "user-1", time.Hour, "")
	require.NoError(t, err)

	w := doRequest(r, "GET", "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = doRequest(r, "GET", "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tokenapi_tokens_issued_total")
}
