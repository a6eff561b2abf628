package mojavez

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// directoryTTL bounds staleness of the cached geography directory.
	// Provinces and townships change rarely.
	directoryTTL = 24 * time.Hour

	provincesCacheKey    = "mojavez:geo:provinces"
	townshipsCacheKeyFmt = "mojavez:geo:townships:%d"
)

// Directory serves the geography directory with an optional Redis cache in
// front of the registry queries. A nil Redis client disables caching; every
// cache failure degrades to a direct query.
type Directory struct {
	client *Client
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewDirectory creates a directory over the registry client. redisClient may
// be nil.
func NewDirectory(client *Client, redisClient *redis.Client) *Directory {
	return &Directory{
		client: client,
		redis:  redisClient,
		ttl:    directoryTTL,
		logger: log.With().Str("component", "geo-directory").Logger(),
	}
}

// Provinces returns all provinces in directory order.
func (d *Directory) Provinces(ctx context.Context) ([]Place, error) {
	if places, ok := d.cached(ctx, provincesCacheKey); ok {
		return places, nil
	}

	places, err := d.client.Provinces(ctx)
	if err != nil {
		return nil, err
	}
	d.store(ctx, provincesCacheKey, places)
	return places, nil
}

// Townships returns the townships of a province in directory order.
func (d *Directory) Townships(ctx context.Context, provinceID int) ([]Place, error) {
	key := fmt.Sprintf(townshipsCacheKeyFmt, provinceID)
	if places, ok := d.cached(ctx, key); ok {
		return places, nil
	}

	places, err := d.client.Townships(ctx, provinceID)
	if err != nil {
		return nil, err
	}
	d.store(ctx, key, places)
	return places, nil
}

// cached looks up a directory entry. Any error counts as a miss.
func (d *Directory) cached(ctx context.Context, key string) ([]Place, bool) {
	if d.redis == nil {
		return nil, false
	}

	data, err := d.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			d.logger.Warn().Err(err).Str("key", key).Msg("Directory cache get failed")
		}
		return nil, false
	}

	var places []Place
	if err := json.Unmarshal(data, &places); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("Invalid directory cache entry")
		_ = d.redis.Del(ctx, key).Err()
		return nil, false
	}

	d.logger.Debug().Str("key", key).Int("places", len(places)).Msg("Directory cache hit")
	return places, true
}

// store writes a directory entry; failures are logged and ignored.
func (d *Directory) store(ctx context.Context, key string, places []Place) {
	if d.redis == nil || len(places) == 0 {
		return
	}

	data, err := json.Marshal(places)
	if err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("Marshal directory entry failed")
		return
	}
	if err := d.redis.Set(ctx, key, data, d.ttl).Err(); err != nil {
		d.logger.Warn().Err(err).Str("key", key).Msg("Directory cache set failed")
	}
}
