package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds the expected workspace id.
var clearIfEqualsScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisStore keeps active workspaces in Redis so every API instance sees the same
// selection. Keys expire after ttl; a zero ttl keeps them forever.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore creates a Redis backed store. keyPrefix defaults to "xm:active_workspace:".
func NewRedisStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "xm:active_workspace:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (r *RedisStore) key(userID uuid.UUID) string {
	return r.keyPrefix + userID.String()
}

func (r *RedisStore) GetActiveWorkspace(ctx context.Context, userID uuid.UUID) (*uuid.UUID, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read active workspace: %w", err)
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("corrupt active workspace for user %s: %w", userID, err)
	}

	return &id, nil
}

func (r *RedisStore) SetActiveWorkspace(ctx context.Context, userID, workspaceID uuid.UUID) error {
	if err := r.client.Set(ctx, r.key(userID), workspaceID.String(), r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store active workspace: %w", err)
	}
	return nil
}

func (r *RedisStore) ClearActiveWorkspace(ctx context.Context, userID uuid.UUID, workspaceID *uuid.UUID) error {
	var err error
	if workspaceID == nil {
		err = r.client.Del(ctx, r.key(userID)).Err()
	} else {
		err = clearIfEqualsScript.Run(ctx, r.client, []string{r.key(userID)}, workspaceID.String()).Err()
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to clear active workspace: %w", err)
	}
	return nil
}
