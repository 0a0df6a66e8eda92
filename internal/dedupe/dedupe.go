// Package dedupe provides a Redis-backed seen-message guard. NATS
// delivers chat events at-least-once, so the moderator marks each
// (chat, message) pair before evaluating it; a redelivered event is
// skipped instead of being moderated twice.
//
//	Key:   seen:<chat_id>:<message_id>
//	Value: 1
//	TTL:   retention window
package dedupe

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// SeenPrefix is the Redis key prefix for seen-message markers.
	SeenPrefix = "seen:"

	// SeenTTL is how long a marker lives. Redeliveries arrive within
	// seconds; an hour is generous.
	SeenTTL = 1 * time.Hour
)

// Guard marks messages as seen in Redis.
type Guard struct {
	client *redis.Client
}

// NewGuard creates a Guard using the provided Redis client.
func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client}
}

// FirstSeen atomically marks a message as seen and reports whether this
// was the first sighting. On Redis errors it fails open (returns true)
// so that a Redis outage degrades to occasional duplicate handling
// rather than dropped moderation.
func (g *Guard) FirstSeen(ctx context.Context, chatID, messageID string) bool {
	key := SeenPrefix + chatID + ":" + messageID

	ok, err := g.client.SetNX(ctx, key, 1, SeenTTL).Result()
	if err != nil {
		log.Printf("[dedupe] redis SETNX error key=%s: %v (failing open)", key, err)
		return true
	}
	return ok
}
