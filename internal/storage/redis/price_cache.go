// Package redis implements storage.PriceCache on Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"strategy-lab/internal/domain"
	"strategy-lab/internal/storage"
)

// Config holds connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// Option configures a PriceCache.
type Option func(*Config)

// WithAddr sets host:port.
func WithAddr(addr string) Option {
	return func(c *Config) { c.Addr = addr }
}

// WithPassword sets the AUTH password.
func WithPassword(password string) Option {
	return func(c *Config) { c.Password = password }
}

// WithDB selects the logical database.
func WithDB(db int) Option {
	return func(c *Config) { c.DB = db }
}

// WithPrefix namespaces every key.
func WithPrefix(prefix string) Option {
	return func(c *Config) { c.Prefix = prefix }
}

// PriceCache stores JSON-encoded series. Each symbol has an index set of
// its keys so InvalidateSymbol does not need to scan.
type PriceCache struct {
	client *goredis.Client
	prefix string
}

// NewPriceCache connects and pings the server.
func NewPriceCache(opts ...Option) (*PriceCache, error) {
	cfg := &Config{
		Addr:     "localhost:6379",
		PoolSize: 10,
		Prefix:   "strategy-lab",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewPriceCacheFromClient(client, cfg.Prefix), nil
}

// NewPriceCacheFromClient wraps an existing client.
func NewPriceCacheFromClient(client *goredis.Client, prefix string) *PriceCache {
	return &PriceCache{client: client, prefix: prefix}
}

// Close closes the Redis connection.
func (c *PriceCache) Close() error {
	return c.client.Close()
}

// Get returns the cached series or storage.ErrCacheMiss.
func (c *PriceCache) Get(ctx context.Context, key string) (*domain.PriceSeries, error) {
	data, err := c.client.Get(ctx, c.dataKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var series domain.PriceSeries
	if err := json.Unmarshal(data, &series); err != nil {
		return nil, fmt.Errorf("decode cached series: %w", err)
	}
	return &series, nil
}

// Set stores series under key and indexes it under the series symbol.
func (c *PriceCache) Set(ctx context.Context, key string, series *domain.PriceSeries, ttl time.Duration) error {
	if key == "" || series == nil {
		return storage.ErrInvalidInput
	}

	data, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.dataKey(key), data, ttl)
	pipe.SAdd(ctx, c.indexKey(series.Symbol), key)
	pipe.SAdd(ctx, c.symbolsKey(), series.Symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// InvalidateSymbol drops every cached range of symbol.
func (c *PriceCache) InvalidateSymbol(ctx context.Context, symbol string) error {
	keys, err := c.client.SMembers(ctx, c.indexKey(symbol)).Result()
	if err != nil {
		return fmt.Errorf("redis smembers: %w", err)
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		toDelete = append(toDelete, c.dataKey(k))
	}
	toDelete = append(toDelete, c.indexKey(symbol))

	pipe := c.client.TxPipeline()
	pipe.Unlink(ctx, toDelete...)
	pipe.SRem(ctx, c.symbolsKey(), symbol)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis invalidate %s: %w", symbol, err)
	}
	return nil
}

// InvalidateAll drops every key under the prefix.
func (c *PriceCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis unlink: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Unlink(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis unlink: %w", err)
		}
	}
	return nil
}

func (c *PriceCache) wrapKey(parts ...string) string {
	return c.prefix + ":" + strings.Join(parts, ":")
}

func (c *PriceCache) dataKey(key string) string {
	return c.wrapKey("series", key)
}

func (c *PriceCache) indexKey(symbol string) string {
	return c.wrapKey("index", symbol)
}

func (c *PriceCache) symbolsKey() string {
	return c.wrapKey("symbols")
}

var _ storage.PriceCache = (*PriceCache)(nil)
