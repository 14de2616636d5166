package notifications

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported", func(t *testing.T) {
		cfg := &config.Config{Notifications: config.NotificationsConfig{Supported: false}}

		capability, closeStore, err := Open(ctx, cfg, logger.NewNop())
		require.NoError(t, err)
		defer closeStore()
		assert.False(t, capability.Supported())
	})

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Notifications: config.NotificationsConfig{Supported: true, Store: "memory", Permission: "denied"}}

		capability, closeStore, err := Open(ctx, cfg, logger.NewNop())
		require.NoError(t, err)
		defer closeStore()

		state, err := capability.RequestPermission(ctx)
		require.NoError(t, err)
		assert.Equal(t, "denied", string(state))

		reg, err := capability.Registration(ctx)
		require.NoError(t, err)
		assert.IsType(t, &MemoryRegistration{}, reg)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		port, err := strconv.Atoi(mr.Port())
		require.NoError(t, err)

		cfg := &config.Config{
			Redis:         config.RedisConfig{Host: mr.Host(), Port: port, KeyPrefix: "tv"},
			Notifications: config.NotificationsConfig{Supported: true, Store: "redis", Permission: "granted"},
		}

		capability, closeStore, err := Open(ctx, cfg, logger.NewNop())
		require.NoError(t, err)
		defer closeStore()

		reg, err := capability.Registration(ctx)
		require.NoError(t, err)
		assert.IsType(t, &RedisRegistration{}, reg)
	})

	t.Run("unknown store", func(t *testing.T) {
		cfg := &config.Config{Notifications: config.NotificationsConfig{Supported: true, Store: "s3"}}

		_, _, err := Open(ctx, cfg, logger.NewNop())
		assert.Error(t, err)
	})
}
