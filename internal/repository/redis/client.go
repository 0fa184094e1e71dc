// Package redis implements the distributed backend: room records as TTL'd
// JSON values, a per-room lease for mutual exclusion across processes, and
// the shared scheduled-task ordered set.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis client for room coordination operations.
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client from a connection URL.
func NewClient(redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key patterns for the room coordination keyspace.
func roomKey(code string) string { return "room:" + code }
func lockKey(code string) string { return "room:" + code + ":lock" }

// tasksKey is the single system-wide ordered set of pending scheduled
// tasks, scored by due time in Unix seconds.
const tasksKey = "tasks:pending"
