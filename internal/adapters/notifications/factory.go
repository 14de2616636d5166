package notifications

import (
	"context"
	"fmt"

	"github.com/taskmaster/taskview/internal/infrastructure/config"
	"github.com/taskmaster/taskview/internal/infrastructure/database"
	"github.com/taskmaster/taskview/internal/infrastructure/logger"
	"github.com/taskmaster/taskview/internal/ports"
)

// Open builds the capability described by cfg and connects its store. The
// returned func releases the store's connections.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Capability, func() error, error) {
	noop := func() error { return nil }

	if !cfg.Notifications.Supported {
		log.Infow("Triggered notifications disabled")
		return Unsupported(), noop, nil
	}

	permission := ports.PermissionState(cfg.Notifications.Permission)

	switch cfg.Notifications.Store {
	case "memory":
		return NewCapability(NewMemoryRegistration(), permission), noop, nil

	case "postgres":
		db, err := database.New(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("open notification store: %w", err)
		}
		log.Infow("Using postgres notification store", "host", cfg.Database.Host, "database", cfg.Database.Name)
		return NewCapability(NewPostgresRegistration(db, log), permission), db.Close, nil

	case "redis":
		client := NewRedisClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("open notification store: %w", err)
		}
		log.Infow("Using redis notification store", "addr", cfg.Redis.GetAddr())
		return NewCapability(NewRedisRegistration(client, cfg.Redis.KeyPrefix), permission), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown notification store %q", cfg.Notifications.Store)
	}
}
