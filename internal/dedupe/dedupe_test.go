package dedupe

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
)

// newTestGuard creates a Guard connected to a local Redis instance and
// cleans up test keys. Tests that call this helper require a running
// Redis on localhost:6379.
func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	cleanup := func() {
		iter := client.Scan(ctx, 0, SeenPrefix+"test_*", 100).Iterator()
		for iter.Next(ctx) {
			client.Del(ctx, iter.Val())
		}
	}
	cleanup()
	t.Cleanup(func() {
		cleanup()
		client.Close()
	})
	return NewGuard(client)
}

func TestFirstSeen(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	if !guard.FirstSeen(ctx, "test_chat", "m1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if guard.FirstSeen(ctx, "test_chat", "m1") {
		t.Fatal("redelivery reported as first sighting")
	}
	if !guard.FirstSeen(ctx, "test_chat", "m2") {
		t.Error("different message reported as duplicate")
	}
	if !guard.FirstSeen(ctx, "test_chat2", "m1") {
		t.Error("same message ID in another chat reported as duplicate")
	}
}

func TestFirstSeen_FailsOpen(t *testing.T) {
	// Client pointed at a closed port: every call errors, and the guard
	// must report first-seen rather than dropping moderation.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()
	guard := NewGuard(client)

	if !guard.FirstSeen(context.Background(), "test_chat", "m1") {
		t.Fatal("guard failed closed on Redis error")
	}
}
