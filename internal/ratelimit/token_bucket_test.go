package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestTokenBucketDrainsAndRefills(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bucket, err := NewRedisTokenBucket(client, 2, time.Second, "")
	if err != nil {
		t.Fatalf("new bucket: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	bucket.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		d, err := bucket.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	d, err := bucket.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("expected throttled decision with retry-after, got %+v", d)
	}

	other, err := bucket.Allow(ctx, "user-2")
	if err != nil || !other.Allowed {
		t.Fatalf("other subjects keep their own bucket, got %+v %v", other, err)
	}

	now = now.Add(time.Second)
	d, err = bucket.Allow(ctx, "user-1")
	if err != nil || !d.Allowed {
		t.Fatalf("expected refill after a full window, got %+v %v", d, err)
	}

	if !mr.Exists(DefaultKeyPrefix + ":user-1") {
		t.Fatal("expected bucket state under the default key prefix")
	}
}

func TestNewRedisTokenBucketValidates(t *testing.T) {
	if _, err := NewRedisTokenBucket(nil, 1, time.Second, ""); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisTokenBucket(client, 0, time.Second, ""); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, 1, 0, ""); err == nil {
		t.Fatal("expected error for zero window")
	}
}
