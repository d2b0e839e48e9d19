package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/therealutkarshpriyadarshi/vidsum/pkg/models"
)

// ErrLockNotHeld is returned when releasing a lock owned by someone else
var ErrLockNotHeld = errors.New("lock not held")

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ParamsKey fingerprints a set of detection overrides so summaries computed
// with different parameters never share a cache entry.
func ParamsKey(p models.DetectionParams) string {
	data, _ := json.Marshal(p)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func summaryKey(videoID string, p models.DetectionParams) string {
	return fmt.Sprintf("summary:%s:%s", videoID, ParamsKey(p))
}

// Summary Cache Operations

// SetSummary caches a finished summary under its video and parameters
func (c *Cache) SetSummary(ctx context.Context, summary *models.Summary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, summaryKey(summary.VideoID, summary.Params), data, ttl)
	pipe.Set(ctx, fmt.Sprintf("summary:latest:%s", summary.VideoID), data, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache summary: %w", err)
	}
	return nil
}

// GetSummary retrieves the summary computed with exactly these parameters.
// A miss returns (nil, nil).
func (c *Cache) GetSummary(ctx context.Context, videoID string, p models.DetectionParams) (*models.Summary, error) {
	return c.getSummary(ctx, summaryKey(videoID, p))
}

// GetLatestSummary retrieves the most recently cached summary for a video
func (c *Cache) GetLatestSummary(ctx context.Context, videoID string) (*models.Summary, error) {
	return c.getSummary(ctx, fmt.Sprintf("summary:latest:%s", videoID))
}

func (c *Cache) getSummary(ctx context.Context, key string) (*models.Summary, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get summary from cache: %w", err)
	}

	var summary models.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &summary, nil
}

// InvalidateSummaries drops every cached summary of a video
func (c *Cache) InvalidateSummaries(ctx context.Context, videoID string) error {
	if err := c.DeletePattern(ctx, fmt.Sprintf("summary:%s:*", videoID)); err != nil {
		return err
	}
	return c.client.Del(ctx, fmt.Sprintf("summary:latest:%s", videoID)).Err()
}

// Job Progress

// SetJobProgress caches job progress for quick retrieval
func (c *Cache) SetJobProgress(ctx context.Context, jobID string, progress float64, ttl time.Duration) error {
	key := fmt.Sprintf("job:progress:%s", jobID)
	return c.client.Set(ctx, key, progress, ttl).Err()
}

// GetJobProgress retrieves job progress. ok is false on a miss.
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (progress float64, ok bool, err error) {
	key := fmt.Sprintf("job:progress:%s", jobID)
	progress, err = c.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get job progress: %w", err)
	}
	return progress, true, nil
}

// Locking Operations for Distributed Systems

// Lock is a held distributed lock
type Lock struct {
	key   string
	token string
}

// AcquireLock attempts to acquire a distributed lock. It returns nil
// without error when another holder owns the resource.
func (c *Cache) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: fmt.Sprintf("lock:%s", resource), token: uuid.NewString()}

	ok, err := c.client.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return lock, nil
}

// ReleaseLock releases a lock acquired by this holder
func (c *Cache) ReleaseLock(ctx context.Context, lock *Lock) error {
	if lock == nil {
		return nil
	}

	n, err := releaseScript.Run(ctx, c.client, []string{lock.key}, lock.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Batch Operations

// DeletePattern deletes all keys matching a pattern
func (c *Cache) DeletePattern(ctx context.Context, pattern string) error {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}
