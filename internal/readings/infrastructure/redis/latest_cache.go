package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	readings "property-monitor/internal/readings/domain"
)

const defaultTTL = 24 * time.Hour

// LatestCache keeps the newest reading per device+type in Redis so dashboard
// reads skip Postgres. Entries expire so dead devices fall out of the cache.
type LatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// CacheOption configures the cache.
type CacheOption func(*LatestCache)

// WithTTL overrides the default entry lifetime.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *LatestCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewLatestCache constructs a cache over an established client.
func NewLatestCache(client *redis.Client, opts ...CacheOption) (*LatestCache, error) {
	if client == nil {
		return nil, errors.New("latest cache: nil client")
	}
	cache := &LatestCache{client: client, ttl: defaultTTL}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

type cachedReading struct {
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedAt time.Time `json:"recorded_at"`
}

// StoreBatch overwrites the latest entry per type. Batches preserve input
// order, so iterating forward leaves the last reading of each type in place.
// Best effort: the ingestion path treats a failure here as a diagnostic.
func (c *LatestCache) StoreBatch(ctx context.Context, batch []readings.Reading) error {
	if c == nil || c.client == nil {
		return errors.New("latest cache: nil client")
	}
	pipe := c.client.Pipeline()
	for _, reading := range batch {
		payload, err := json.Marshal(cachedReading{
			Value:      reading.Value,
			Unit:       reading.Unit,
			RecordedAt: reading.RecordedAt,
		})
		if err != nil {
			return err
		}
		pipe.Set(ctx, cacheKey(reading.DeviceID, reading.Type), payload, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Latest returns the cached reading for a device+type, or nil on a miss.
func (c *LatestCache) Latest(ctx context.Context, deviceID, readingType string) (*readings.Reading, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("latest cache: nil client")
	}
	payload, err := c.client.Get(ctx, cacheKey(deviceID, readingType)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cached cachedReading
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, err
	}
	return &readings.Reading{
		DeviceID:   deviceID,
		Type:       readingType,
		Kind:       readings.ParseKind(readingType),
		Value:      cached.Value,
		Unit:       cached.Unit,
		RecordedAt: cached.RecordedAt,
	}, nil
}

func cacheKey(deviceID, readingType string) string {
	return fmt.Sprintf("reading:last:%s:%s", deviceID, readingType)
}
