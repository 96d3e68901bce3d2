package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestRedisLimiter_Integration requires a running Redis on localhost.
func TestRedisLimiter_Integration(t *testing.T) {
	client := NewRedisClient("localhost:6379", "")
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	l := NewRedisLimiter(client, 1, 1)
	key := "test-" + uuid.NewString()

	allowed, err := l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("Expected allowed=true for fresh bucket")
	}

	allowed, err = l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if allowed {
		t.Errorf("Expected allowed=false (rate limited)")
	}

	time.Sleep(1100 * time.Millisecond)
	allowed, err = l.Allow(ctx, key)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !allowed {
		t.Errorf("Expected allowed=true after refill")
	}
}

func TestNewRedisLimiter_TTL(t *testing.T) {
	l := NewRedisLimiter(nil, 0.5, 10)
	if l.ttl != 21 {
		t.Fatalf("ttl = %d, want 21", l.ttl)
	}
}
