package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"sitebuilder/internal/domain"
)

var errCacheMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache adapts a go-redis client to Cache.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		prefix: "sitebuilder:",
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errCacheMiss
	}
	return b, err
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, value, ttl).Err()
}

// CachedGateway serves LoadVersion from a cache. Versions are immutable, so
// entries never need invalidating; everything else passes through.
type CachedGateway struct {
	domain.Gateway
	cache Cache
	ttl   time.Duration
	log   *log.Logger
}

func NewCachedGateway(inner domain.Gateway, cache Cache, ttl time.Duration, l *log.Logger) *CachedGateway {
	if l == nil {
		l = log.Default()
	}
	return &CachedGateway{Gateway: inner, cache: cache, ttl: ttl, log: l.WithPrefix("cache")}
}

func versionKey(id string) string { return "version:" + id }

func (g *CachedGateway) LoadVersion(ctx context.Context, versionID string) (*domain.PageState, error) {
	data, err := g.cache.Get(ctx, versionKey(versionID))
	switch {
	case err == nil:
		var st domain.PageState
		if jerr := json.Unmarshal(data, &st); jerr == nil {
			return &st, nil
		} else {
			g.log.Warn("dropping undecodable cache entry", "version", versionID, "err", jerr)
		}
	case !errors.Is(err, errCacheMiss):
		// cache outage degrades to the backing store
		g.log.Warn("cache read failed", "version", versionID, "err", err)
	}

	st, err := g.Gateway.LoadVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(st); err == nil {
		if err := g.cache.Set(ctx, versionKey(versionID), data, g.ttl); err != nil {
			g.log.Warn("cache write failed", "version", versionID, "err", err)
		}
	}
	return st, nil
}
