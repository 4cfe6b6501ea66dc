package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cityrag/backend/pkg/logger"
	"github.com/cityrag/backend/pkg/utils"
)

// CacheEntry stores the vectors for one exact ordered batch together with
// the model identity and dimension that produced them. A hit with a
// mismatched model or dimension is discarded even though the key already
// encodes the model.
type CacheEntry struct {
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
	TextCount int         `json:"text_count"`
	Vectors   [][]float32 `json:"vectors"`
}

// Cache is a content-addressed store for embedded batches. Implementations
// must be safe for concurrent use; two writers racing on the same key is
// harmless because identical keys carry identical content.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, bool, error)
	Put(ctx context.Context, key string, entry *CacheEntry) error
	// Name identifies the cache tier in metrics labels.
	Name() string
}

// CacheKey derives the content address of an ordered text batch for a given
// model. A different ordering or partition of the same texts is a different
// key.
func CacheKey(texts []string, model string) string {
	combined := strings.Join(texts, "|") + "|" + model
	return utils.HashString(combined)[:16]
}

// DiskCache persists one JSON file per batch under a cache directory.
type DiskCache struct {
	dir string
	mu  sync.Mutex
}

func NewDiskCache(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	logger.Info("Embedding disk cache initialized", zap.String("dir", dir))
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Name() string { return "disk" }

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, fmt.Sprintf("embeddings_%s.json", key))
}

func (c *DiskCache) Get(_ context.Context, key string) (*CacheEntry, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to parse cache entry: %w", err)
	}
	return &entry, true, nil
}

func (c *DiskCache) Put(_ context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Write-then-rename so concurrent readers never observe a torn file.
	tmp := c.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	if err := os.Rename(tmp, c.path(key)); err != nil {
		return fmt.Errorf("failed to commit cache entry: %w", err)
	}
	return nil
}

// Clear removes every cached batch file.
func (c *DiskCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(c.dir, "embeddings_*.json"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	logger.Info("Embedding cache cleared", zap.Int("entries", len(matches)))
	return nil
}

// RedisCache shares embedded batches between processes through redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(host string, port int, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Embedding redis cache initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	data, err := c.client.Get(ctx, "embedding:"+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cache entry: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, entry *CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, "embedding:"+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
