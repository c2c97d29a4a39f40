package cache

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		insertedAt time.Time
		ttl        time.Duration
		want       bool
	}{
		{
			name:       "expired entry",
			insertedAt: now.Add(-2 * time.Hour),
			ttl:        time.Hour,
			want:       true,
		},
		{
			name:       "valid entry",
			insertedAt: now,
			ttl:        time.Hour,
			want:       false,
		},
		{
			name:       "exactly at ttl",
			insertedAt: now.Add(-time.Minute),
			ttl:        time.Minute,
			want:       true,
		},
		{
			name:       "no ttl never expires",
			insertedAt: now.Add(-24 * time.Hour),
			ttl:        0,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{InsertedAt: tt.insertedAt, TTL: tt.ttl}
			if got := entry.IsExpired(now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_Remaining(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name  string
		entry Entry
		want  time.Duration
	}{
		{
			name:  "one hour remaining",
			entry: Entry{InsertedAt: now, TTL: time.Hour},
			want:  time.Hour,
		},
		{
			name:  "already expired",
			entry: Entry{InsertedAt: now.Add(-2 * time.Hour), TTL: time.Hour},
			want:  0,
		},
		{
			name:  "5 minutes remaining",
			entry: Entry{InsertedAt: now.Add(-55 * time.Minute), TTL: time.Hour},
			want:  5 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Remaining(now); got != tt.want {
				t.Errorf("Remaining() = %v, want %v", got, tt.want)
			}
		})
	}
}
