// Package rediscache implements the generation.PlanCache interface on top
// of Redis, so identical topics planned within the TTL reuse the stored
// structure instead of calling the model again.
package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathlight/pathlight-api/internal/generation"
)

const keyPrefix = "pathlight:plan:"

// PlanCache caches planned structures in Redis keyed by a hash of the
// normalized topic.
type PlanCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New creates a PlanCache from a Redis URL (redis://host:port/db).
func New(url string, ttl time.Duration, logger *slog.Logger) (*PlanCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PlanCache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		logger: logger.With(slog.String("component", "plan_cache")),
	}, nil
}

// Ensure PlanCache implements generation.PlanCache
var _ generation.PlanCache = (*PlanCache)(nil)

// GetPlan implements generation.PlanCache.GetPlan. A miss returns
// (nil, nil) so callers fall through to the generator.
func (c *PlanCache) GetPlan(ctx context.Context, topic string) (*generation.Plan, error) {
	data, err := c.client.Get(ctx, planKey(topic)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached plan: %w", err)
	}

	var plan generation.Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		// Stale or corrupt entry. Drop it and treat as a miss.
		c.logger.Warn("discarding unreadable cached plan",
			slog.String("topic", topic),
			slog.String("error", err.Error()))
		if delErr := c.client.Del(ctx, planKey(topic)).Err(); delErr != nil {
			c.logger.Warn("failed to delete cached plan", slog.String("error", delErr.Error()))
		}
		return nil, nil
	}
	return &plan, nil
}

// SetPlan implements generation.PlanCache.SetPlan.
func (c *PlanCache) SetPlan(ctx context.Context, topic string, plan *generation.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if err := c.client.Set(ctx, planKey(topic), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache plan: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection pool.
func (c *PlanCache) Close() error {
	return c.client.Close()
}

// planKey hashes the normalized topic so arbitrary user input never appears
// in key space.
func planKey(topic string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(topic))))
	return keyPrefix + hex.EncodeToString(sum[:])
}
