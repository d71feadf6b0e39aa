// Package dedup suppresses duplicate alert ingestion within a configured
// window using Redis SETNX, so a flapping upstream monitor re-sending the
// same alert.v1 payload doesn't spawn a second incident for work already
// in flight (spec §4.1 supplemented feature: dedup cache).
package dedup

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/kubernaut-bdi/agent/internal/errors"
)

// Cache wraps a Redis client scoped to alert deduplication.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    logr.Logger
}

func New(client *redis.Client, ttl time.Duration, log logr.Logger) *Cache {
	return &Cache{client: client, ttl: ttl, log: log.WithName("dedup-cache")}
}

const keyPrefix = "bdi:dedup:"

// SeenRecently atomically marks alertID as seen and reports whether it
// had already been seen within the TTL window. On a Redis error it fails
// open (reports false, logs the error) rather than blocking ingestion.
func (c *Cache) SeenRecently(ctx context.Context, alertID string) (bool, error) {
	set, err := c.client.SetNX(ctx, keyPrefix+alertID, 1, c.ttl).Result()
	if err != nil {
		c.log.Error(err, "dedup cache unavailable, failing open", "alert_id", alertID)
		return false, apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "check dedup cache for alert %s", alertID)
	}
	// SetNX reports true when the key was newly set (i.e. not seen before).
	return !set, nil
}

// Forget removes an alert's dedup entry, used when an incident for it
// resolves and a subsequent re-fire should be treated as new.
func (c *Cache) Forget(ctx context.Context, alertID string) error {
	if err := c.client.Del(ctx, keyPrefix+alertID).Err(); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrorTypeNetwork, "forget dedup entry for alert %s", alertID)
	}
	return nil
}
