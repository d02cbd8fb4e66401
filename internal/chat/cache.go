package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers chats a user was already validated for. A hit skips the
// participant check until the entry expires.
type Cache interface {
	Get(ctx context.Context, uid, chatID string) (Chat, bool, error)
	Put(ctx context.Context, uid string, c Chat) error
}

type memoryEntry struct {
	chat    Chat
	expires time.Time
}

// MemoryCache is an in-process Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &MemoryCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryCache) Get(_ context.Context, uid, chatID string) (Chat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cacheKey(uid, chatID)
	e, ok := m.entries[key]
	if !ok {
		return Chat{}, false, nil
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return Chat{}, false, nil
	}
	return e.chat, true, nil
}

func (m *MemoryCache) Put(_ context.Context, uid string, c Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[cacheKey(uid, c.ID)] = memoryEntry{chat: c, expires: m.now().Add(m.ttl)}
	return nil
}

// RedisCache shares validated chats across API replicas.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("chat: redis client required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context, uid, chatID string) (Chat, bool, error) {
	data, err := r.redis.Get(ctx, cacheKey(uid, chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Chat{}, false, nil
	}
	if err != nil {
		return Chat{}, false, fmt.Errorf("chat: cache get: %w", err)
	}
	var c Chat
	if err := json.Unmarshal(data, &c); err != nil {
		return Chat{}, false, fmt.Errorf("chat: cache decode: %w", err)
	}
	return c, true, nil
}

func (r *RedisCache) Put(ctx context.Context, uid string, c Chat) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("chat: cache encode: %w", err)
	}
	if err := r.redis.Set(ctx, cacheKey(uid, c.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("chat: cache put: %w", err)
	}
	return nil
}

func cacheKey(uid, chatID string) string {
	return "clinicops:chat:" + uid + ":" + chatID
}
