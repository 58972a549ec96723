package insights

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = 5 * time.Minute

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func (c *Cache) key(username string) string {
	return "insights:profile:" + strings.ToLower(strings.TrimSpace(username))
}

func (c *Cache) Save(ctx context.Context, username string, p *Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(username), raw, c.ttl).Err()
}

// Load returns nil, nil on a miss.
func (c *Cache) Load(ctx context.Context, username string) (*Profile, error) {
	raw, err := c.rdb.Get(ctx, c.key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Cache) Invalidate(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, c.key(username)).Err()
}

// CachedFetcher serves profiles from the cache and fills it from the upstream on a miss.
// Cache failures are logged and never fail a fetch.
type CachedFetcher struct {
	upstream Fetcher
	cache    *Cache
	log      *zap.Logger
}

func NewCachedFetcher(upstream Fetcher, cache *Cache, logger *zap.Logger) *CachedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFetcher{upstream: upstream, cache: cache, log: logger}
}

func (f *CachedFetcher) Fetch(ctx context.Context, username string) (*Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidUsername
	}
	if f.cache != nil {
		p, err := f.cache.Load(ctx, username)
		if err != nil {
			f.log.Warn("failed to read insights cache", zap.String("username", username), zap.Error(err))
		} else if p != nil {
			return p, nil
		}
	}

	p, err := f.upstream.Fetch(ctx, username)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		if err := f.cache.Save(ctx, username, p); err != nil {
			f.log.Warn("failed to write insights cache", zap.String("username", username), zap.Error(err))
		}
	}
	return p, nil
}

// Refresh drops the cached profile and fetches it again from upstream.
func (f *CachedFetcher) Refresh(ctx context.Context, username string) (*Profile, error) {
	username = strings.TrimSpace(username)
	if f.cache != nil && username != "" {
		if err := f.cache.Invalidate(ctx, username); err != nil {
			f.log.Warn("failed to invalidate insights cache", zap.String("username", username), zap.Error(err))
		}
	}
	return f.Fetch(ctx, username)
}
