package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/lvs-console/internal/logger"
	"github.com/raaihank/lvs-console/internal/logparse"
)

// ReportCache keeps parsed violation logs in Redis, keyed by a hash of the
// raw log text.
type ReportCache struct {
	client *redis.Client
	config *Config
	logger *logger.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewReportCache connects to Redis and returns a ready cache
func NewReportCache(config *Config, log *logger.Logger) (*ReportCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	rc := &ReportCache{
		client: redis.NewClient(opts),
		config: config,
		logger: log.WithComponent("cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	rc.logger.Info("Report cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return rc, nil
}

// Get returns the cached parse of text. Lookup failures are logged and
// reported as a miss.
func (rc *ReportCache) Get(ctx context.Context, text string) (*logparse.Result, bool) {
	key := rc.key(text)

	data, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		rc.misses.Add(1)
		rc.logger.Debug("Cache miss", zap.String("key", key))
		return nil, false
	} else if err != nil {
		rc.misses.Add(1)
		rc.logger.Error("Cache lookup failed", zap.Error(err))
		return nil, false
	}

	var cached CachedResult
	if err := json.Unmarshal(data, &cached); err != nil {
		rc.misses.Add(1)
		rc.logger.Error("Failed to unmarshal cached result", zap.Error(err))
		// Delete corrupted cache entry
		rc.client.Del(ctx, key)
		return nil, false
	}

	rc.hits.Add(1)
	rc.logger.Debug("Cache hit",
		zap.String("key", key),
		zap.String("strategy", string(cached.Strategy)),
		zap.Int("rows", len(cached.Rows)))

	return &logparse.Result{Strategy: cached.Strategy, Rows: cached.Rows}, true
}

// Put stores the parse of text with the default TTL
func (rc *ReportCache) Put(ctx context.Context, text string, res logparse.Result) error {
	key := rc.key(text)

	data, err := json.Marshal(CachedResult{
		Strategy: res.Strategy,
		Rows:     res.Rows,
		CachedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result for caching: %w", err)
	}

	if err := rc.client.Set(ctx, key, data, rc.config.DefaultTTL).Err(); err != nil {
		rc.logger.Error("Failed to cache result", zap.Error(err))
		return fmt.Errorf("failed to cache result: %w", err)
	}

	rc.logger.Debug("Result cached", zap.String("key", key), zap.Int("rows", len(res.Rows)))
	return nil
}

// GetStats returns cache performance statistics
func (rc *ReportCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := rc.client.Info(ctx, "memory").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := rc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes every cached result under the key prefix
func (rc *ReportCache) Clear(ctx context.Context) error {
	iter := rc.client.Scan(ctx, 0, rc.config.KeyPrefix+":rules:*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (rc *ReportCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func (rc *ReportCache) key(text string) string {
	return reportKey(rc.config.KeyPrefix, text)
}

// reportKey is <prefix>:rules:<first 16 hex chars of sha256(text)>
func reportKey(prefix, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:rules:%s", prefix, hex.EncodeToString(sum[:])[:16])
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	userPart := url[:at]
	start := 0
	if i := strings.Index(userPart, "://"); i >= 0 {
		start = i + 3
	}
	colon := strings.LastIndex(userPart[start:], ":")
	if colon < 0 {
		return url
	}
	return userPart[:start+colon+1] + "***" + url[at:]
}
