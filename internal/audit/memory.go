package audit

import (
	"context"
	"sync"
)

// MemoryLog is an in-process Log used in tests and as a degraded
// fallback when PostgreSQL is unreachable at startup. Records live only
// as long as the process.
type MemoryLog struct {
	mu      sync.Mutex
	nextID  int64
	records []Record
}

// NewMemoryLog creates an empty in-memory audit log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{nextID: 1}
}

// Append stores a copy of the record and returns its assigned ID.
func (l *MemoryLog) Append(_ context.Context, r *Record) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *r
	stored.ID = l.nextID
	l.nextID++
	l.records = append(l.records, stored)
	return stored.ID, nil
}

// QueryRecent returns up to limit records for a chat, newest first.
func (l *MemoryLog) QueryRecent(_ context.Context, chatID string, limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit = clampLimit(limit)
	var out []Record
	for i := len(l.records) - 1; i >= 0 && len(out) < limit; i-- {
		if l.records[i].ChatID == chatID {
			out = append(out, l.records[i])
		}
	}
	return out, nil
}

// Len returns the total number of stored records.
func (l *MemoryLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
