package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/spyword/server/internal/apperr"
)

// Lease tuning. The expiry bounds how long a crashed holder can block a
// room; the wait bound turns contention into a Busy backpressure signal
// instead of an unbounded queue.
const (
	leaseExpiry = 3 * time.Second
	leaseWait   = 5 * time.Second
	leaseRetry  = 50 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired lease taken over by another process is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// acquireLease takes the per-room lease, retrying on a short interval up to
// the wait bound. Failure to acquire returns a Busy error.
func (c *Client) acquireLease(ctx context.Context, code string) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(leaseWait)

	for {
		ok, err := c.rdb.SetNX(ctx, lockKey(code), token, leaseExpiry).Result()
		if err != nil {
			return "", fmt.Errorf("acquire lease: %w", err)
		}
		if ok {
			return token, nil
		}
		if time.Now().After(deadline) {
			return "", apperr.Busy("room %s is busy, try again", code)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(leaseRetry):
		}
	}
}

// releaseLease gives the lease back if we still hold it.
func (c *Client) releaseLease(ctx context.Context, code, token string) {
	// Best effort: an unreleased lease expires on its own.
	_ = releaseScript.Run(ctx, c.rdb, []string{lockKey(code)}, token).Err()
}
