package ai

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("redis container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	endpoint, err := ctr.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisBudget_CountsAndLimits(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t)

	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := NewRedisBudget(client, "coursecraft:", 100)
	b.now = func() time.Time { return day }

	if ok, err := b.Check(ctx, "user1"); err != nil || !ok {
		t.Fatalf("Check() before usage = %v, %v; want true", ok, err)
	}

	if err := b.Record(ctx, "user1", 60); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	used, limit, err := b.Usage(ctx, "user1")
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if used != 60 || limit != 100 {
		t.Errorf("Usage() = %d/%d, want 60/100", used, limit)
	}
	if ok, _ := b.Check(ctx, "user1"); !ok {
		t.Error("Check() under the limit should pass")
	}

	if err := b.Record(ctx, "user1", 50); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ok, err := b.Check(ctx, "user1"); err != nil || ok {
		t.Errorf("Check() over the limit = %v, %v; want false", ok, err)
	}
	if used, _, _ := b.Usage(ctx, "user1"); used != 110 {
		t.Errorf("used = %d, want 110", used)
	}

	// Other users and other days have their own counters.
	if ok, _ := b.Check(ctx, "user2"); !ok {
		t.Error("user2 should be unaffected")
	}
	b.now = func() time.Time { return day.Add(24 * time.Hour) }
	if used, _, _ := b.Usage(ctx, "user1"); used != 0 {
		t.Errorf("next day used = %d, want 0", used)
	}

	ttl, err := client.TTL(ctx, "coursecraft:budget:"+usageKey("user1", day)).Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > 48*time.Hour {
		t.Errorf("TTL = %v, want within (0, 48h]", ttl)
	}

	if err := b.Record(ctx, "user1", -1); err == nil {
		t.Error("negative tokens should be rejected")
	}
}

func TestRedisBudget_CorruptCounter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()
	client := startRedis(t)

	b := NewRedisBudget(client, "coursecraft:", 100)
	if err := client.Set(ctx, "coursecraft:budget:"+usageKey("user1", b.now()), "lots", time.Hour).Err(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Check(ctx, "user1"); err == nil {
		t.Error("Check() should fail on a non-numeric counter")
	}
}
