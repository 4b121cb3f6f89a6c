package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// counterClient is the subset of *redis.Client the counter needs.
type counterClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// DownloadCounter tracks per-version download counts in Redis. Counts are
// advisory analytics; a lost increment is acceptable, so there is no
// write-through to Postgres.
type DownloadCounter struct {
	rdb counterClient
}

func NewDownloadCounter(rdb *redis.Client) *DownloadCounter {
	return &DownloadCounter{rdb: rdb}
}

func newDownloadCounterWithClient(rdb counterClient) *DownloadCounter {
	return &DownloadCounter{rdb: rdb}
}

func downloadKey(nodeID, path string, version int) string {
	return fmt.Sprintf("downloads:%s:%s:%d", nodeID, path, version)
}

// Increment bumps the counter and returns the new value.
func (c *DownloadCounter) Increment(ctx context.Context, nodeID, path string, version int) (int64, error) {
	n, err := c.rdb.Incr(ctx, downloadKey(nodeID, path, version)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}

// Get returns the counter value; versions never downloaded count as zero.
func (c *DownloadCounter) Get(ctx context.Context, nodeID, path string, version int) (int64, error) {
	n, err := c.rdb.Get(ctx, downloadKey(nodeID, path, version)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis error: %w", err)
	}
	return n, nil
}
