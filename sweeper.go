// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

type tokenCleaner interface {
	CleanupExpiredTokens(ctx context.Context) (int64, error)
}

// runSweeper removes expired tokens every interval until ctx is done. A
// non-positive interval disables it.
func runSweeper(ctx context.Context, tokens tokenCleaner, interval time.Duration, logger hclog.Logger) {
	if interval <= 0 {
		return
	}
	logger = logger.Named("sweeper")
	logger.Info("token sweeper started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are logged by the service; the next tick retries.
			_, _ = tokens.CleanupExpiredTokens(ctx)
		}
	}
}
