// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

type countingCleaner struct {
	calls atomic.Int32
}

func (c *countingCleaner) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	c.calls.Add(1)
	return 0, nil
}

func TestRunSweeper(t *testing.T) {
	cleaner := &countingCleaner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		runSweeper(ctx, cleaner, 10*time.Millisecond, hclog.NewNullLogger())
		close(done)
	}()

	assert.Eventually(t, func() bool { return cleaner.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestRunSweeperDisabled(t *testing.T) {
	cleaner := &countingCleaner{}
	runSweeper(context.Background(), cleaner, 0, hclog.NewNullLogger())
	assert.Zero(t, cleaner.calls.Load())
}
