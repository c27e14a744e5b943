// Package snapshot caches zone summaries in Redis for dashboards that should
// not hit the engine on every refresh.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dd0wney/cluso-waternet/pkg/dma"
	"github.com/dd0wney/cluso-waternet/pkg/engine"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// DefaultTTL bounds how stale a cached summary may get when rollups stop
const DefaultTTL = 15 * time.Minute

const defaultPrefix = "waternet:zone:"

// Cache stores zone summaries under <prefix><dma id>
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithPrefix changes the key prefix
func WithPrefix(p string) Option {
	return func(c *Cache) { c.prefix = p }
}

// WithTTL changes the summary expiry
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger sets the logger
func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New wraps a Redis client
func New(client *redis.Client, opts ...Option) *Cache {
	c := &Cache{client: client, prefix: defaultPrefix, ttl: DefaultTTL, logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logging.Component("snapshot"))
	return c
}

// Dial connects to a Redis server and checks it answers
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Cache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

func (c *Cache) key(id dma.ID) string { return c.prefix + string(id) }

func (c *Cache) index() string { return c.prefix + "index" }

// PutZone caches a summary and records its id in the index set
func (c *Cache) PutZone(ctx context.Context, s engine.ZoneSummary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal zone summary: %w", err)
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, c.key(s.ID), data, c.ttl)
		p.SAdd(ctx, c.index(), string(s.ID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache zone %s: %w", s.ID, err)
	}
	c.logger.Debug("zone snapshot cached", logging.DMA(string(s.ID)))
	return nil
}

// GetZone returns the cached summary of a zone
func (c *Cache) GetZone(ctx context.Context, id dma.ID) (engine.ZoneSummary, error) {
	val, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.ZoneSummary{}, fault.New("GetZone").DMA(string(id)).Cause(fault.ErrNoData).Err()
	}
	if err != nil {
		return engine.ZoneSummary{}, fmt.Errorf("failed to get zone snapshot: %w", err)
	}
	var s engine.ZoneSummary
	if err := json.Unmarshal(val, &s); err != nil {
		return engine.ZoneSummary{}, fmt.Errorf("failed to unmarshal zone snapshot: %w", err)
	}
	return s, nil
}

// Zones returns every cached summary ordered by zone id. Index entries
// whose summary has expired are removed.
func (c *Cache) Zones(ctx context.Context) ([]engine.ZoneSummary, error) {
	ids, err := c.client.SMembers(ctx, c.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read zone index: %w", err)
	}
	sort.Strings(ids)

	out := make([]engine.ZoneSummary, 0, len(ids))
	var stale []any
	for _, id := range ids {
		s, err := c.GetZone(ctx, dma.ID(id))
		if errors.Is(err, fault.ErrNoData) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(stale) > 0 {
		if err := c.client.SRem(ctx, c.index(), stale...).Err(); err != nil {
			c.logger.Warn("failed to trim zone index", logging.Error(err))
		}
	}
	return out, nil
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (c *Cache) Close() error {
	return c.client.Close()
}
