package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func TestIncrementWindowSetsTTLOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	repo := NewRateRepo(client)
	ctx := context.Background()

	count, ttl, err := repo.IncrementWindow(ctx, "rate:test", time.Minute)
	if err != nil {
		t.Fatalf("first increment: %v", err)
	}
	if count != 1 || ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected first window: count=%d ttl=%s", count, ttl)
	}

	mr.FastForward(30 * time.Second)
	count, ttl, err = repo.IncrementWindow(ctx, "rate:test", time.Minute)
	if err != nil {
		t.Fatalf("second increment: %v", err)
	}
	if count != 2 || ttl > 31*time.Second {
		t.Fatalf("window must not be extended: count=%d ttl=%s", count, ttl)
	}

	mr.FastForward(31 * time.Second)
	count, ttl, err = repo.IncrementWindow(ctx, "rate:test", time.Minute)
	if err != nil || count != 1 || ttl <= 30*time.Second {
		t.Fatalf("expected a fresh window, count=%d ttl=%s err=%v", count, ttl, err)
	}
}

func TestNewClientFailsFastWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewClient(context.Background(), Options{Addr: addr}); err == nil {
		t.Fatalf("expected ping failure")
	}
}
