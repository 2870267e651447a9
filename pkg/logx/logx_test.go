package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(b), &m); err != nil {
		t.Fatalf("not a json line: %q: %v", b, err)
	}
	return m
}

func TestWriterFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").Named("runner").ForJob("database_backup")
	log.Info("job completed", Period("2024-05-10"), RunID("r1"), Int("n", 3))

	m := decodeLine(t, buf.Bytes())
	for k, want := range map[string]any{
		"comp": "runner", "job": "database_backup", "period": "2024-05-10", "run": "r1",
		"message": "job completed", "level": "info", "n": float64(3),
	} {
		if m[k] != want {
			t.Fatalf("%s = %v, want %v", k, m[k], want)
		}
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}
	if log.Enabled(LevelDebug) || !log.Enabled(LevelError) {
		t.Fatal("Enabled disagrees with level")
	}
}

func TestZeroAndNop(t *testing.T) {
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Error("nothing happens")
	Nop().With(Job("x")).Warn("nothing happens")
}

func TestServiceFileSinkAndReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cronkeep.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("first")

	rotated := path + ".1"
	if err := os.Rename(path, rotated); err != nil {
		t.Fatal(err)
	}
	svc.Reopen()
	log.Info("second")
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	old, _ := os.ReadFile(rotated)
	cur, _ := os.ReadFile(path)
	if !strings.Contains(string(old), "first") || strings.Contains(string(old), "second") {
		t.Fatalf("rotated file = %q", old)
	}
	if !strings.Contains(string(cur), "second") {
		t.Fatalf("reopened file = %q", cur)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"DEBUG": LevelDebug, " warning ": LevelWarn, "bogus": LevelInfo, "": LevelInfo}
	for in, want := range tests {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
