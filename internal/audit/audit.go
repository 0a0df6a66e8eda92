// Package audit provides the append-only log of moderation removals.
// Records are written before any removal is attempted and are never
// updated or deleted, preserving moderation history for accountability.
package audit

import (
	"context"
	"errors"
	"time"
)

// DefaultQueryLimit is the number of records QueryRecent returns when
// the caller passes a non-positive limit.
const DefaultQueryLimit = 10

// MaxQueryLimit caps QueryRecent result sizes regardless of the
// requested limit.
const MaxQueryLimit = 100

// ErrStorageUnavailable is returned when the backing store cannot be
// written. The pipeline treats it as a record-step failure and proceeds
// with the remaining moderation actions.
var ErrStorageUnavailable = errors.New("audit: storage unavailable")

// Record is one removed-message entry. ID is monotonic and assigned by
// the store on append.
type Record struct {
	ID        int64
	ChatID    string
	UserID    string
	Username  string
	Message   string
	Reason    string
	CreatedAt time.Time
}

// Log is the append-only audit store. Implementations must be safe for
// concurrent use. There are no update or delete operations by design.
type Log interface {
	// Append persists a record and returns its assigned ID.
	Append(ctx context.Context, r *Record) (int64, error)

	// QueryRecent returns up to limit records for a chat, most recent
	// first. A non-positive limit means DefaultQueryLimit.
	QueryRecent(ctx context.Context, chatID string, limit int) ([]Record, error)
}

// clampLimit normalizes a caller-supplied query limit.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
