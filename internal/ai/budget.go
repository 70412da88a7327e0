package ai

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// BudgetChecker checks and records daily token usage per user.
type BudgetChecker interface {
	// Check returns true if the user has budget remaining today.
	Check(ctx context.Context, userID string) (bool, error)
	// Record adds token usage for the user to today's total.
	Record(ctx context.Context, userID string, tokens int) error
	// Usage returns today's usage and the applicable limit (0 = unlimited).
	Usage(ctx context.Context, userID string) (used int64, limit int64, err error)
}

// InMemoryBudget is a process-local budget tracker for development and tests.
type InMemoryBudget struct {
	mu           sync.RWMutex
	defaultLimit int64
	limits       map[string]int64 // userID -> limit
	usage        map[string]int64 // userID:day -> tokens used
	now          func() time.Time
}

// NewInMemoryBudget creates a tracker applying defaultLimit to every user
// without an explicit limit. A zero default means unlimited.
func NewInMemoryBudget(defaultLimit int64) *InMemoryBudget {
	return &InMemoryBudget{
		defaultLimit: defaultLimit,
		limits:       make(map[string]int64),
		usage:        make(map[string]int64),
		now:          time.Now,
	}
}

// SetLimit overrides the daily limit for one user.
func (b *InMemoryBudget) SetLimit(userID string, tokens int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limits[userID] = tokens
}

func (b *InMemoryBudget) Check(_ context.Context, userID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	limit := b.limitFor(userID)
	if limit <= 0 {
		return true, nil
	}
	return b.usage[usageKey(userID, b.now())] < limit, nil
}

func (b *InMemoryBudget) Record(_ context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.usage[usageKey(userID, b.now())] += int64(tokens)
	return nil
}

func (b *InMemoryBudget) Usage(_ context.Context, userID string) (int64, int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usage[usageKey(userID, b.now())], b.limitFor(userID), nil
}

func (b *InMemoryBudget) limitFor(userID string) int64 {
	if l, ok := b.limits[userID]; ok {
		return l
	}
	return b.defaultLimit
}

// RedisBudget keeps daily counters in Redis so budgets survive restarts and
// are shared between replicas.
type RedisBudget struct {
	client *redis.Client
	prefix string
	limit  int64
	now    func() time.Time
}

// NewRedisBudget creates a Redis-backed tracker. prefix namespaces keys.
func NewRedisBudget(client *redis.Client, prefix string, limit int64) *RedisBudget {
	return &RedisBudget{client: client, prefix: prefix, limit: limit, now: time.Now}
}

func (b *RedisBudget) Check(ctx context.Context, userID string) (bool, error) {
	if b.limit <= 0 {
		return true, nil
	}
	used, err := b.used(ctx, userID)
	if err != nil {
		return false, err
	}
	return used < b.limit, nil
}

func (b *RedisBudget) Record(ctx context.Context, userID string, tokens int) error {
	if tokens < 0 {
		return fmt.Errorf("tokens must be non-negative, got %d", tokens)
	}
	key := b.prefix + "budget:" + usageKey(userID, b.now())
	pipe := b.client.TxPipeline()
	pipe.IncrBy(ctx, key, int64(tokens))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record token usage: %w", err)
	}
	return nil
}

func (b *RedisBudget) Usage(ctx context.Context, userID string) (int64, int64, error) {
	used, err := b.used(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	return used, b.limit, nil
}

func (b *RedisBudget) used(ctx context.Context, userID string) (int64, error) {
	key := b.prefix + "budget:" + usageKey(userID, b.now())
	v, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read token usage: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token usage %q: %w", v, err)
	}
	return n, nil
}

func usageKey(userID string, now time.Time) string {
	return userID + ":" + now.UTC().Format("2006-01-02")
}
