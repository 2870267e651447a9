package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "cronkeep/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.markers.snapshot.json (compacted state)
//   - <prefix>.markers.journal.jsonl (append-only journal)
//   - <prefix>.markers.lock          (flock target)
//
// Every operation holds an exclusive flock on the lock file and first
// catches up with records other processes appended, so a daemon and a CLI
// sharing the path see each other's writes. Compaction replaces the journal
// file; a process holding the old one notices the changed inode and reloads.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	lock         *os.File
	journal      *os.File
	offset       int64 // bytes of journal already applied
	markers      map[string]Marker

	writes       int
	compactEvery int
}

type journalRecord struct {
	Op    string `json:"op"` // "set" | "del"
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	At    int64  `json:"at"` // unix milli
}

func openFile(cfg Config, log logx.Logger) (MarkerStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	lf, err := os.OpenFile(prefix+".markers.lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	s := &fileStore{
		log:          log,
		snapshotPath: prefix + ".markers.snapshot.json",
		journalPath:  prefix + ".markers.journal.jsonl",
		lock:         lf,
		compactEvery: 1000,
	}
	if err := s.locked(func() error { return nil }); err != nil {
		_ = lf.Close()
		if s.journal != nil {
			_ = s.journal.Close()
		}
		return nil, err
	}
	return s, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		mk Marker
		ok bool
	)
	err := s.locked(func() error {
		mk, ok = s.markers[key]
		return nil
	})
	return mk.Value, ok, err
}

func (s *fileStore) SetForever(ctx context.Context, key, value string) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked(func() error { return s.setLocked(key, value) })
}

func (s *fileStore) CompareAndSwap(ctx context.Context, key, prev, next string) (bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return false, ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	swapped := false
	err := s.locked(func() error {
		cur, ok := s.markers[key]
		if !casMatches(cur.Value, ok, prev) {
			return nil
		}
		if err := s.setLocked(key, next); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked(func() error {
		if _, ok := s.markers[key]; !ok {
			return nil
		}
		if err := s.appendLocked(journalRecord{Op: "del", Key: key, At: time.Now().UnixMilli()}); err != nil {
			return err
		}
		delete(s.markers, key)
		return nil
	})
}

func (s *fileStore) List(ctx context.Context) ([]Marker, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Marker
	err := s.locked(func() error {
		out = make([]Marker, 0, len(s.markers))
		for _, mk := range s.markers {
			out = append(out, mk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortMarkers(out)
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	if err := s.locked(s.compactLocked); err != nil {
		s.log.Debug("marker compact on close failed", logx.Err(err))
	}
	var errs []error
	if s.journal != nil {
		errs = append(errs, s.journal.Close())
		s.journal = nil
	}
	errs = append(errs, s.lock.Close())
	s.lock = nil
	return errors.Join(errs...)
}

// locked runs fn under the cross-process lock with the in-memory view
// brought up to date. s.mu must be held.
func (s *fileStore) locked(fn func() error) error {
	if s.lock == nil {
		return ErrClosed
	}
	if err := lockFile(s.lock); err != nil {
		return err
	}
	defer func() {
		if err := unlockFile(s.lock); err != nil {
			s.log.Warn("marker lock release failed", logx.Err(err))
		}
	}()
	if err := s.refreshLocked(); err != nil {
		return err
	}
	return fn()
}

// refreshLocked applies journal records written since the last call, or
// reloads everything when the journal file was replaced by a compaction.
func (s *fileStore) refreshLocked() error {
	if s.journal != nil {
		onDisk, err := os.Stat(s.journalPath)
		cur, cerr := s.journal.Stat()
		if err == nil && cerr == nil && os.SameFile(onDisk, cur) {
			return s.catchUpLocked()
		}
	}
	return s.reloadLocked()
}

func (s *fileStore) reloadLocked() error {
	markers := map[string]Marker{}
	if err := loadSnapshot(s.snapshotPath, markers); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Warn("marker snapshot unreadable; relying on journal", logx.String("path", s.snapshotPath), logx.Err(err))
	}
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	if s.journal != nil {
		_ = s.journal.Close()
	}
	s.journal = jf
	s.markers = markers
	s.offset = 0
	return s.catchUpLocked()
}

func (s *fileStore) catchUpLocked() error {
	fi, err := s.journal.Stat()
	if err != nil {
		return err
	}
	if fi.Size() <= s.offset {
		return nil
	}
	data, err := io.ReadAll(io.NewSectionReader(s.journal, s.offset, fi.Size()-s.offset))
	if err != nil {
		return err
	}
	applyJournal(data, s.markers)
	s.offset = fi.Size()
	// Writers hold the lock, so a missing final newline is a torn write from
	// a crash. Terminate it so the next record starts on its own line.
	if data[len(data)-1] != '\n' {
		if _, err := s.journal.Write([]byte{'\n'}); err != nil {
			return err
		}
		s.offset++
	}
	return nil
}

func (s *fileStore) setLocked(key, value string) error {
	now := time.Now()
	// Journal first: the in-memory view never runs ahead of disk.
	if err := s.appendLocked(journalRecord{Op: "set", Key: key, Value: value, At: now.UnixMilli()}); err != nil {
		return err
	}
	s.markers[key] = Marker{Key: key, Value: value, UpdatedAt: now}
	return nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	if _, err := s.journal.Write(line); err != nil {
		return err
	}
	if err := s.journal.Sync(); err != nil {
		return err
	}
	s.offset += int64(len(line))
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("marker compact failed", logx.Err(err))
		}
	}
	return nil
}

// compactLocked writes the snapshot, then swaps in an empty journal.
func (s *fileStore) compactLocked() error {
	if err := writeFileAtomic(s.snapshotPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(snapshotFromMarkers(s.markers))
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(s.journalPath, func(io.Writer) error { return nil }); err != nil {
		return err
	}
	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	_ = s.journal.Close()
	s.journal = jf
	s.offset = 0
	return nil
}

func writeFileAtomic(path string, fill func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

type snapshotEntry struct {
	Value string `json:"value"`
	At    int64  `json:"at"`
}

func snapshotFromMarkers(m map[string]Marker) map[string]snapshotEntry {
	out := make(map[string]snapshotEntry, len(m))
	for k, mk := range m {
		out[k] = snapshotEntry{Value: mk.Value, At: mk.UpdatedAt.UnixMilli()}
	}
	return out
}

func loadSnapshot(path string, out map[string]Marker) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]snapshotEntry
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = Marker{Key: k, Value: v.Value, UpdatedAt: time.UnixMilli(v.At)}
	}
	return nil
}

func applyJournal(data []byte, out map[string]Marker) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn write after a crash
			continue
		}
		if r.Key == "" {
			continue
		}
		switch r.Op {
		case "del":
			delete(out, r.Key)
		default:
			out[r.Key] = Marker{Key: r.Key, Value: r.Value, UpdatedAt: time.UnixMilli(r.At)}
		}
	}
}
