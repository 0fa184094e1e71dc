package redis

import (
	"context"
	"time"

	"github.com/spyword/server/internal/model"
)

// Execute acquires the room's lease, loads a fresh copy, runs fn against
// it, and saves on success with a version bump. The lease is released on
// every exit path; a failed fn leaves the stored record untouched.
func (c *Client) Execute(ctx context.Context, code string, fn func(*model.Room) error) error {
	token, err := c.acquireLease(ctx, code)
	if err != nil {
		return err
	}
	defer c.releaseLease(ctx, code, token)

	room, err := c.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	if err := fn(room); err != nil {
		return err
	}
	room.Version++
	room.ChangedAt = time.Now()
	return c.saveRoom(ctx, room)
}

// Read runs fn against the last committed record. No lease is needed: a
// save is a single write, so a plain load always observes a fully
// committed snapshot.
func (c *Client) Read(ctx context.Context, code string, fn func(*model.Room)) error {
	room, err := c.loadRoom(ctx, code)
	if err != nil {
		return err
	}
	fn(room)
	return nil
}

// IsInactive reports whether the room has not changed for threshold.
func (c *Client) IsInactive(ctx context.Context, code string, threshold time.Duration) (bool, error) {
	room, err := c.loadRoom(ctx, code)
	if err != nil {
		return false, err
	}
	return time.Since(room.ChangedAt) >= threshold, nil
}
