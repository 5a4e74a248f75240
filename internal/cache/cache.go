// Package cache 提供带过期时间的键值存储，用于验证码、登录限流与令牌黑名单。
// 启用 Redis 时使用 Redis，否则退化为进程内的 ristretto 缓存。
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/redis/go-redis/v9"
)

// ErrMiss 键不存在或已过期。
var ErrMiss = errors.New("cache: key not found")

// Store 是验证码、限流等功能依赖的最小键值接口。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// Incr 自增计数，首次创建时设置过期时间。
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisStore 基于 go-redis 的实现。
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if count == 1 {
		_ = s.client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// MemoryStore 基于 ristretto 的进程内实现。
// ristretto 的写入经过缓冲，每次写后 Wait 以保证随后的读取可见。
type MemoryStore struct {
	mu    sync.Mutex
	cache *ristretto.Cache[string, string]
}

// NewMemoryStore 按条数计费，最多约 maxItems 个键。
func NewMemoryStore(maxItems int64) (*MemoryStore, error) {
	if maxItems <= 0 {
		maxItems = 1 << 16
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("new ristretto cache: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.cache.Get(key)
	if !ok {
		return "", ErrMiss
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value, ttl)
}

func (s *MemoryStore) set(key, value string, ttl time.Duration) error {
	if !s.cache.SetWithTTL(key, value, 1, ttl) {
		return fmt.Errorf("memory cache rejected %s", key)
	}
	s.cache.Wait()
	return nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.cache.Del(key)
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	remaining := ttl
	if raw, ok := s.cache.Get(key); ok {
		count, _ = strconv.ParseInt(raw, 10, 64)
		if left, ok := s.cache.GetTTL(key); ok && left > 0 {
			remaining = left
		}
	}
	count++
	if err := s.set(key, strconv.FormatInt(count, 10), remaining); err != nil {
		return 0, err
	}
	return count, nil
}

// Close 释放 ristretto 的后台协程。
func (s *MemoryStore) Close() {
	s.cache.Close()
}
