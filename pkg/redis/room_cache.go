package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	roomKeyPrefix  = "room:"
	DefaultRoomTTL = 24 * time.Hour
)

// RoomCache keeps the last published snapshot of each room so read-only
// requests and reconnecting clients do not have to wake the room actor.
type RoomCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoomCache(client *redis.Client, ttl time.Duration) *RoomCache {
	if ttl <= 0 {
		ttl = DefaultRoomTTL
	}
	return &RoomCache{client: client, ttl: ttl}
}

func roomKey(roomID string) string {
	return fmt.Sprintf("%s%s", roomKeyPrefix, roomID)
}

func (c *RoomCache) SetSnapshot(ctx context.Context, roomID string, snapshot interface{}) error {
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, roomKey(roomID), snapshotJSON, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache snapshot: %w", err)
	}
	return nil
}

// GetSnapshot decodes the cached snapshot into dst. It reports false when
// nothing is cached.
func (c *RoomCache) GetSnapshot(ctx context.Context, roomID string, dst interface{}) (bool, error) {
	snapshotJSON, err := c.client.Get(ctx, roomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if err := json.Unmarshal(snapshotJSON, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return true, nil
}

func (c *RoomCache) Invalidate(ctx context.Context, roomID string) error {
	return c.client.Del(ctx, roomKey(roomID)).Err()
}
