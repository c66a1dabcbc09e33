// Package session keeps the workspace each user has selected as active.
package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/curaious/xm/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Store remembers the active workspace per user.
type Store interface {
	GetActiveWorkspace(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error)
	SetActiveWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) error
	// ClearActiveWorkspace forgets the user's active workspace. When workspaceID is
	// non-nil it only does so if that workspace is the active one.
	ClearActiveWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *uuid.UUID) error
}

// NewStore returns a Redis backed store when REDIS_ADDR is configured and an
// in-memory one otherwise.
func NewStore(ctx context.Context, conf *config.Config) (Store, error) {
	if conf.REDIS_ADDR == "" {
		slog.Info("REDIS_ADDR not set, keeping active workspaces in memory")
		return NewInMemoryStore(conf.SESSION_TTL), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.REDIS_ADDR,
		Password: conf.REDIS_PASSWORD,
		DB:       conf.REDIS_DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("Connected to redis for sessions", slog.String("addr", conf.REDIS_ADDR))
	return NewRedisStore(client, "", conf.SESSION_TTL), nil
}
