// Package logsink writes the human-readable, append-only audit trail kept per
// job family. Each attempt produces one block:
//
//	[2024-05-10 02:40:00] Database backup
//	<captured output>
package logsink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimeLayout is the timestamp format used in entry headers.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is one attempt record.
type Entry struct {
	At     time.Time
	Label  string
	Output string
}

// Format renders e as "[at] label\noutput\n".
func (e Entry) Format() string {
	var b strings.Builder
	b.Grow(len(e.Label) + len(e.Output) + 24)
	b.WriteString("[")
	b.WriteString(e.At.Format(TimeLayout))
	b.WriteString("] ")
	b.WriteString(e.Label)
	b.WriteString("\n")
	b.WriteString(e.Output)
	b.WriteString("\n")
	return b.String()
}

// Sink receives audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
}

// FileSink appends entries to a file, never truncating it.
type FileSink struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Append(ctx context.Context, e Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		s.f = f
	}
	_, err := s.f.WriteString(e.Format())
	return err
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// Pool hands out one FileSink per path so jobs sharing a log file share a
// writer.
type Pool struct {
	mu    sync.Mutex
	sinks map[string]*FileSink
}

func NewPool() *Pool { return &Pool{sinks: map[string]*FileSink{}} }

func (p *Pool) Get(path string) *FileSink {
	path = filepath.Clean(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sinks[path]; ok {
		return s
	}
	s := NewFileSink(path)
	p.sinks[path] = s
	return s
}

// Reopen closes every cached file handle. The next Append on each sink opens
// the path again, picking up a file moved aside by logrotate.
func (p *Pool) Reopen() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.sinks = map[string]*FileSink{}
	return errors.Join(errs...)
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *MemorySink) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	m.entries = append(m.entries, e)
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Discard drops every entry.
type Discard struct{}

func (Discard) Append(context.Context, Entry) error { return nil }
