// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return "redis://" + endpoint + "/0"
}

func TestRedisLimiter_Integration(t *testing.T) {
	ctx := context.Background()
	client, err := Connect(ctx, startRedis(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisLimiter(client, Config{Window: 2 * time.Second})

	t.Run("enforces limit across concurrent callers", func(t *testing.T) {
		var allowed atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := l.Allow(ctx, "concurrent@example.com")
				assert.NoError(t, err)
				if ok {
					allowed.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(DefaultLimit), allowed.Load())
	})

	t.Run("window expires in redis", func(t *testing.T) {
		for i := 0; i < DefaultLimit; i++ {
			ok, err := l.Allow(ctx, "expiry@example.com")
			require.NoError(t, err)
			require.True(t, ok)
		}

		ttl, err := client.PTTL(ctx, l.Key("expiry@example.com")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		assert.Eventually(t, func() bool {
			ok, err := l.Allow(ctx, "expiry@example.com")
			return err == nil && ok
		}, 5*time.Second, 100*time.Millisecond)
	})
}
