package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "rutas:"

	// Values at least this large are gzipped before they are stored.
	compressThreshold = 1024

	scanBatch = 200
)

var gzipMagic = []byte{0x1f, 0x8b}

type Options struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "rutas:".
	Prefix string
}

type RedisCache struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisCache(opts Options, logger *slog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
		logger: logger.With("component", "redis_cache", "db", opts.DB),
	}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(k string) string {
	return c.prefix + k
}

// Get returns nil, nil on a miss. Gzipped values are inflated transparently.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.logger.Debug("cache miss", "key", key)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}

	stored := len(val)
	if bytes.HasPrefix(val, gzipMagic) {
		if val, err = gzipDecompress(val); err != nil {
			return nil, fmt.Errorf("inflate %s: %w", key, err)
		}
	}

	c.logger.Debug("cache hit",
		"key", key,
		"stored_bytes", stored,
		"size_bytes", len(val),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return val, nil
}

// SetMany writes all entries in one MULTI/EXEC so readers never see a
// partial group. Each value is compressed when it is large enough.
func (c *RedisCache) SetMany(ctx context.Context, entries map[string][]byte, ttl time.Duration) error {
	start := time.Now()
	stored := 0

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range entries {
			enc, err := encodeValue(v)
			if err != nil {
				return fmt.Errorf("compress %s: %w", k, err)
			}
			stored += len(enc)
			pipe.Set(ctx, c.key(k), enc, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %d keys: %w", len(entries), err)
	}

	c.logger.Debug("cache set",
		"keys", len(entries),
		"stored_bytes", stored,
		"ttl", ttl,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.SetMany(ctx, map[string][]byte{key: value}, ttl)
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("json unmarshal: %w", err)
	}
	return true, nil
}

// DeletePattern unlinks every key matching pattern and returns how many
// were removed. Keys are scanned and unlinked in batches.
func (c *RedisCache) DeletePattern(ctx context.Context, pattern string) (int, error) {
	deleted := 0
	batch := make([]string, 0, scanBatch)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.client.Unlink(ctx, batch...).Result()
		deleted += int(n)
		batch = batch[:0]
		return err
	}

	iter := c.client.Scan(ctx, 0, c.key(pattern), scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			if err := flush(); err != nil {
				return deleted, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, err
	}
	return deleted, flush()
}

func encodeValue(v []byte) ([]byte, error) {
	if len(v) < compressThreshold {
		return v, nil
	}
	return gzipCompress(v)
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
