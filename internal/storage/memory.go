package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	mu     sync.Mutex
	m      map[string]Marker
	closed bool
}

// NewMemory returns a process-local store.
func NewMemory() MarkerStore {
	return &memoryStore{m: map[string]Marker{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	mk, ok := s.m[key]
	return mk.Value, ok, nil
}

func (s *memoryStore) SetForever(ctx context.Context, key, value string) error {
	_ = ctx
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.m[key] = Marker{Key: key, Value: value, UpdatedAt: time.Now()}
	return nil
}

func (s *memoryStore) CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error) {
	_ = ctx
	if strings.TrimSpace(key) == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	cur, ok := s.m[key]
	if !casMatches(cur.Value, ok, prev) {
		return false, nil
	}
	s.m[key] = Marker{Key: key, Value: next, UpdatedAt: time.Now()}
	return true, nil
}

func (s *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.m, key)
	return nil
}

func (s *memoryStore) List(ctx context.Context) ([]Marker, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]Marker, 0, len(s.m))
	for _, mk := range s.m {
		out = append(out, mk)
	}
	sortMarkers(out)
	return out, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// casMatches reports whether the current state satisfies a CAS precondition.
func casMatches(cur string, present bool, prev string) bool {
	if prev == "" {
		return !present || cur == ""
	}
	return present && cur == prev
}

func sortMarkers(ms []Marker) {
	sort.Slice(ms, func(i, j int) bool { return ms[i].Key < ms[j].Key })
}
