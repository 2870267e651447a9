package logsink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEntryFormat(t *testing.T) {
	t.Parallel()
	e := Entry{
		At:     time.Date(2024, 5, 10, 2, 40, 0, 0, time.UTC),
		Label:  "Database backup",
		Output: "Backup completed!",
	}
	want := "[2024-05-10 02:40:00] Database backup\nBackup completed!\n"
	if got := e.Format(); got != want {
		t.Fatalf("Format() = %q, want %q", got, want)
	}
}

func TestFileSinkAppendsWithoutTruncating(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "backup.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("previous content\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileSink(path)
	at := time.Date(2024, 5, 10, 2, 40, 0, 0, time.UTC)
	if err := s.Append(context.Background(), Entry{At: at, Label: "A", Output: "one"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(context.Background(), Entry{At: at.Add(24 * time.Hour), Label: "A", Output: "two"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen after close keeps appending.
	if err := s.Append(context.Background(), Entry{At: at, Label: "B", Output: ""}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "previous content\n" +
		"[2024-05-10 02:40:00] A\none\n" +
		"[2024-05-11 02:40:00] A\ntwo\n" +
		"[2024-05-10 02:40:00] B\n\n"
	if string(b) != want {
		t.Fatalf("file content:\n%q\nwant:\n%q", b, want)
	}
}

func TestPoolSharesSinkPerPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := NewPool()
	defer p.Close()
	a := p.Get(filepath.Join(dir, "cleanup.log"))
	b := p.Get(filepath.Join(dir, ".", "cleanup.log"))
	c := p.Get(filepath.Join(dir, "backup.log"))
	if a != b {
		t.Fatal("same path should share a sink")
	}
	if a == c {
		t.Fatal("different paths should not share a sink")
	}
}

func TestPoolReopenFollowsRotation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.log")
	p := NewPool()
	defer p.Close()
	s := p.Get(path)
	ctx := context.Background()
	at := time.Date(2024, 5, 10, 2, 40, 0, 0, time.UTC)

	if err := s.Append(ctx, Entry{At: at, Label: "Backup", Output: "first"}); err != nil {
		t.Fatal(err)
	}
	rotated := path + ".1"
	if err := os.Rename(path, rotated); err != nil {
		t.Fatal(err)
	}
	if err := p.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if p.Get(path) != s {
		t.Fatal("Reopen should keep the pooled sink")
	}
	if err := s.Append(ctx, Entry{At: at, Label: "Backup", Output: "second"}); err != nil {
		t.Fatal(err)
	}

	old, err := os.ReadFile(rotated)
	if err != nil {
		t.Fatal(err)
	}
	cur, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "[2024-05-10 02:40:00] Backup\nfirst\n"; string(old) != want {
		t.Fatalf("rotated file = %q, want %q", old, want)
	}
	if want := "[2024-05-10 02:40:00] Backup\nsecond\n"; string(cur) != want {
		t.Fatalf("new file = %q, want %q", cur, want)
	}
}
