package ratelimit

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, capacity int) *RedisTokenBucket {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, capacity, time.Minute, "")
	if err != nil {
		t.Fatalf("NewRedisTokenBucket returned error: %v", err)
	}
	return bucket
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	if _, err := NewRedisTokenBucket(nil, 10, time.Minute, ""); err == nil {
		t.Fatal("expected error without client")
	}
	if _, err := NewRedisTokenBucket(client, 0, time.Minute, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 10, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}
}

func TestNewRedisTokenBucketDefaults(t *testing.T) {
	bucket := newTestBucket(t, 60)

	if bucket.keyPrefix != "pixelnote:ratelimit" {
		t.Fatalf("expected default key prefix, got %s", bucket.keyPrefix)
	}
	if bucket.ttl != 2*time.Minute {
		t.Fatalf("expected ttl of two windows, got %s", bucket.ttl)
	}
	if got, want := bucket.refillPerMS, 60.0/60000.0; got != want {
		t.Fatalf("expected refill %v per ms, got %v", want, got)
	}
}

func TestClampCost(t *testing.T) {
	bucket := newTestBucket(t, 10)

	tests := []struct {
		cost int64
		want int64
	}{
		{cost: -3, want: 1},
		{cost: 0, want: 1},
		{cost: 4, want: 4},
		{cost: 10, want: 10},
		{cost: 500, want: 10},
	}
	for _, tt := range tests {
		if got := bucket.clampCost(tt.cost); got != tt.want {
			t.Fatalf("clampCost(%d) = %d, want %d", tt.cost, got, tt.want)
		}
	}
}

func TestToInt64(t *testing.T) {
	for _, in := range []any{int64(7), 7, float64(7), "7"} {
		got, err := toInt64(in)
		if err != nil || got != 7 {
			t.Fatalf("toInt64(%#v) = %d, %v", in, got, err)
		}
	}
	if _, err := toInt64([]byte("7")); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestParseDecision(t *testing.T) {
	decision, err := parseDecision([]any{int64(0), int64(3), int64(1500)})
	if err != nil {
		t.Fatalf("parseDecision returned error: %v", err)
	}
	if decision.Allowed || decision.Remaining != 3 || decision.RetryAfter != 1500*time.Millisecond {
		t.Fatalf("unexpected decision %+v", decision)
	}

	if _, err := parseDecision([]any{int64(1)}); err == nil {
		t.Fatal("expected error for short response")
	}
	if _, err := parseDecision([]any{int64(1), "x", int64(0)}); err == nil {
		t.Fatal("expected error for non-numeric remaining")
	}
}
