package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spyword/server/internal/apperr"
	"github.com/spyword/server/internal/model"
)

// roomTTL is the multi-hour expiry set when a room record is created.
// Abandoned rooms disappear on their own; the lease and task entries are
// self-expiring too, so the distributed backend needs no janitor.
const roomTTL = 12 * time.Hour

// Create inserts a new room record, failing if the code is already taken.
func (c *Client) Create(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	ok, err := c.rdb.SetNX(ctx, roomKey(room.Code), data, roomTTL).Result()
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	if !ok {
		return apperr.ActionFailed("room code %s already exists", room.Code)
	}
	return nil
}

// Exists reports whether a live room record has this code.
func (c *Client) Exists(ctx context.Context, code string) (bool, error) {
	n, err := c.rdb.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("room exists: %w", err)
	}
	return n > 0, nil
}

// Delete removes a room record outright.
func (c *Client) Delete(ctx context.Context, code string) error {
	return c.rdb.Del(ctx, roomKey(code)).Err()
}

// loadRoom fetches and decodes a room record. Missing or soft-deleted
// records surface as NotFound.
func (c *Client) loadRoom(ctx context.Context, code string) (*model.Room, error) {
	data, err := c.rdb.Get(ctx, roomKey(code)).Bytes()
	if err == redis.Nil {
		return nil, apperr.NotFound("room %s not found", code)
	}
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	if room.Deleted {
		return nil, apperr.NotFound("room %s not found", code)
	}
	return &room, nil
}

// saveRoom writes a room record back, preserving its remaining TTL.
func (c *Client) saveRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("marshal room: %w", err)
	}
	return c.rdb.Set(ctx, roomKey(room.Code), data, redis.KeepTTL).Err()
}
