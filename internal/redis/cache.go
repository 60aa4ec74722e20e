package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"azure-communication/internal/domain"

	goredis "github.com/redis/go-redis/v9"
)

// Cache key patterns:
// - chat:threads - latest thread list
// - chat:thread:{thread_id}:messages - latest sorted history of one thread

const threadsKey = "chat:threads"

// CacheConfig contains configuration for caching
type CacheConfig struct {
	SnapshotTTL time.Duration // TTL for mirrored snapshots, 0 keeps them forever
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		SnapshotTTL: 10 * time.Minute,
	}
}

// CacheStore mirrors published snapshots into Redis so other processes can
// read them without talking to ACS. Satisfies chatsync.SnapshotSink.
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

// NewCacheStore creates a new cache store
func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func messagesKey(threadID string) string {
	return fmt.Sprintf("chat:thread:%s:messages", threadID)
}

// --- Thread list ---

// StoreThreads replaces the mirrored thread list
func (c *CacheStore) StoreThreads(ctx context.Context, threads []domain.Thread) error {
	return c.set(ctx, threadsKey, threads)
}

// GetThreads returns the mirrored thread list. A miss is (nil, false, nil).
func (c *CacheStore) GetThreads(ctx context.Context) ([]domain.Thread, bool, error) {
	var threads []domain.Thread
	ok, err := c.get(ctx, threadsKey, &threads)
	return threads, ok, err
}

// --- Message history ---

// StoreMessages replaces the mirrored history of one thread
func (c *CacheStore) StoreMessages(ctx context.Context, threadID string, msgs []domain.Message) error {
	return c.set(ctx, messagesKey(threadID), msgs)
}

// GetMessages returns the mirrored history of one thread. A miss is
// (nil, false, nil).
func (c *CacheStore) GetMessages(ctx context.Context, threadID string) ([]domain.Message, bool, error) {
	var msgs []domain.Message
	ok, err := c.get(ctx, messagesKey(threadID), &msgs)
	return msgs, ok, err
}

// InvalidateThread removes the mirrored history of one thread
func (c *CacheStore) InvalidateThread(ctx context.Context, threadID string) error {
	return c.client.Del(ctx, messagesKey(threadID)).Err()
}

func (c *CacheStore) set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, c.config.SnapshotTTL).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (c *CacheStore) get(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil // Cache miss
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
