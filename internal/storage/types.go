package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrEmptyKey = errors.New("storage: empty key")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only, lost on restart
//   - "file":   jsonl journal + snapshot under Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Marker is one persisted key/value pair.
type Marker struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// MarkerStore is the read/write contract the scheduler needs from a shared
// key/value store.
type MarkerStore interface {
	// Get returns the stored value; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetForever stores value under key with no expiration.
	SetForever(ctx context.Context, key, value string) error
	// CompareAndSwap stores next only if the current value equals prev.
	// An empty prev means "key absent".
	CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error)
	// Delete removes key. Reserved for administrative resets.
	Delete(ctx context.Context, key string) error
	// List returns all markers sorted by key.
	List(ctx context.Context) ([]Marker, error)
	Close() error
}
