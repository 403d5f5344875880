package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/matrix"
)

// ErrMiss is returned when a device-day is not cached
var ErrMiss = errors.New("matrix not cached")

// Key returns the Redis key of a device-day's matrix payload
func Key(deviceID, date string) string {
	return fmt.Sprintf("rfi:matrix:%s:%s", deviceID, date)
}

// MatrixCache keeps the dashboard JSON payload of recent matrices in Redis,
// zstd-compressed, so the data service can answer
// time_series_matrix_data/{device}/{date} without re-reading the CSV.
type MatrixCache struct {
	redis *redis.Client
	comp  *Compressor
	ttl   time.Duration
}

// NewMatrixCache creates a cache; ttl <= 0 keeps entries until evicted
func NewMatrixCache(client *redis.Client, comp *Compressor, ttl time.Duration) *MatrixCache {
	return &MatrixCache{redis: client, comp: comp, ttl: ttl}
}

// Put stores the payload of m
func (c *MatrixCache) Put(ctx context.Context, m *matrix.DayMatrix) error {
	data, err := m.MarshalPayload()
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := Key(m.DeviceID, m.Date)
	if err := c.redis.Set(ctx, key, c.comp.Compress(data), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s in Redis: %w", key, err)
	}
	return nil
}

func (c *MatrixCache) payload(ctx context.Context, deviceID, date string) ([]byte, error) {
	key := Key(deviceID, date)
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from Redis: %w", key, err)
	}
	return c.comp.Decompress(data)
}

// Get returns the cached matrix, or ErrMiss
func (c *MatrixCache) Get(ctx context.Context, deviceID, date string) (*matrix.DayMatrix, error) {
	data, err := c.payload(ctx, deviceID, date)
	if err != nil {
		return nil, err
	}
	return matrix.UnmarshalPayload(deviceID, date, data)
}

// Name implements batch.DaySink
func (c *MatrixCache) Name() string {
	return "redis-matrix-cache"
}

// DayProcessed implements batch.DaySink
func (c *MatrixCache) DayProcessed(ctx context.Context, out *batch.DayOutput) error {
	return c.Put(ctx, out.Matrix)
}
