package cache

import (
	"time"
)

// Entry is a cached value together with the data needed to expire it.
type Entry struct {
	// Value is the cached payload.
	Value any `json:"value"`

	// InsertedAt is when the entry was written.
	InsertedAt time.Time `json:"inserted_at"`

	// TTL is how long the entry stays valid. Zero means no expiry.
	TTL time.Duration `json:"ttl"`
}

// NewEntry creates an entry inserted now.
func NewEntry(value any, ttl time.Duration) *Entry {
	return &Entry{
		Value:      value,
		InsertedAt: time.Now(),
		TTL:        ttl,
	}
}

// IsExpired returns true if the entry is older than its TTL at now.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.TTL <= 0 {
		return false
	}
	return now.Sub(e.InsertedAt) >= e.TTL
}

// Remaining returns the time until expiration, 0 if already expired.
// Entries without TTL report 0 as well.
func (e *Entry) Remaining(now time.Time) time.Duration {
	if e.TTL <= 0 {
		return 0
	}
	left := e.InsertedAt.Add(e.TTL).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
