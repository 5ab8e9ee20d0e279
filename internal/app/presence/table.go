package presence

import (
	"slices"
	"strings"
	"time"
)

// record is what a Table can hold: a keyed value with a last-seen time.
type record interface {
	Key() string
	Seen() time.Time
}

// Table maps a user id to that user's latest record of one kind.
// It is not safe for concurrent use; the Channel serializes access.
type Table[T record] struct {
	rows map[string]T
}

// NewTable returns an empty table.
func NewTable[T record]() *Table[T] {
	return &Table[T]{rows: make(map[string]T)}
}

// Upsert inserts r or replaces the record with the same key.
func (t *Table[T]) Upsert(r T) {
	t.rows[r.Key()] = r
}

// Get returns the record for userID.
func (t *Table[T]) Get(userID string) (T, bool) {
	r, ok := t.rows[userID]
	return r, ok
}

// Delete removes userID and reports whether it was present.
func (t *Table[T]) Delete(userID string) bool {
	if _, ok := t.rows[userID]; !ok {
		return false
	}
	delete(t.rows, userID)
	return true
}

// Len returns the number of records.
func (t *Table[T]) Len() int {
	return len(t.rows)
}

// Clear removes every record.
func (t *Table[T]) Clear() {
	clear(t.rows)
}

// Snapshot returns a copy of all records ordered by key.
func (t *Table[T]) Snapshot() []T {
	out := make([]T, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b T) int {
		return strings.Compare(a.Key(), b.Key())
	})
	return out
}

// EvictOlderThan removes records whose age at now is strictly greater than ttl
// and returns their keys. A record exactly ttl old is kept.
func (t *Table[T]) EvictOlderThan(now time.Time, ttl time.Duration) []string {
	var evicted []string
	for key, r := range t.rows {
		if now.Sub(r.Seen()) > ttl {
			delete(t.rows, key)
			evicted = append(evicted, key)
		}
	}
	slices.Sort(evicted)
	return evicted
}
