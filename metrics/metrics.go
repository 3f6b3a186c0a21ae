// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenapi_tokens_issued_total",
		Help: "Total number of access tokens issued",
	}, []string{"single_session"})

	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tokenapi_token_validations_total",
		Help: "Total number of token validation attempts",
	}, []string{"result"})

	TokensRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenapi_tokens_revoked_total",
		Help: "Total number of explicit token revocations",
	})

	TokensDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenapi_tokens_deleted_total",
		Help: "Total number of tokens deleted outside the sweep",
	})

	TokensSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tokenapi_tokens_swept_total",
		Help: "Total number of expired or revoked tokens removed by cleanup",
	})

	StoreDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tokenapi_store_duration_seconds",
		Help:    "Time spent in token store operations",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2.0, 12), // 0.5ms to ~1s
	}, []string{"operation"})
)

// Validation results
const (
	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultError   = "error"
)
