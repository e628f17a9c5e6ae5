package evaluator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// CooldownStore 告警冷却状态，Acquire 对单个 key 为原子的检查并设置
// 距上次触发不足 window 时返回 false 且不修改状态
type CooldownStore interface {
	Acquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
}

// MemoryCooldownStore 进程内冷却状态
type MemoryCooldownStore struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
}

// NewMemoryCooldownStore 创建进程内冷却状态
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{lastFired: make(map[string]time.Time)}
}

// Acquire 实现 CooldownStore
func (s *MemoryCooldownStore) Acquire(_ context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if last, ok := s.lastFired[key]; ok && now.Sub(last) < window {
		return false, nil
	}
	s.lastFired[key] = now
	return true, nil
}

// RedisCooldownStore 基于 SET NX PX 的冷却状态，多实例共享
// 冷却窗口由 key 过期时间表达
type RedisCooldownStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCooldownStore 创建 Redis 冷却状态
func NewRedisCooldownStore(client *redis.Client, prefix string) *RedisCooldownStore {
	return &RedisCooldownStore{client: client, prefix: prefix}
}

// Acquire 实现 CooldownStore
func (s *RedisCooldownStore) Acquire(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := s.client.SetNX(ctx, s.prefix+key, now.UnixMilli(), window).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire cooldown %s: %w", key, err)
	}
	return ok, nil
}
