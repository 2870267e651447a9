package job

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func okAction() Action {
	return ActionFunc(func(context.Context) Outcome { return Outcome{Succeeded: true} })
}

func TestRegistryPreservesOrderAndRejectsDuplicates(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, id := range []string{"free_tier_renewal", "inactive_user_cleanup", "database_backup"} {
		if err := r.Register(Definition{ID: id, Action: okAction()}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	err := r.Register(Definition{ID: "database_backup", Action: okAction()})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Fatalf("err = %v, want ErrDuplicateJob", err)
	}
	if err := r.Register(Definition{ID: " ", Action: okAction()}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("empty id err = %v", err)
	}
	if err := r.Register(Definition{ID: "no_action"}); !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("nil action err = %v", err)
	}

	all := r.All()
	got := make([]string, 0, len(all))
	for _, d := range all {
		got = append(got, d.ID)
	}
	if strings.Join(got, ",") != "free_tier_renewal,inactive_user_cleanup,database_backup" {
		t.Fatalf("order = %v", got)
	}
	if _, ok := r.Get("inactive_user_cleanup"); !ok {
		t.Fatal("Get should find registered job")
	}
}

func TestParseMarkerPolicy(t *testing.T) {
	t.Parallel()
	if p, err := ParseMarkerPolicy(""); err != nil || p != MarkerAlways {
		t.Fatalf("default = %v, %v", p, err)
	}
	if p, err := ParseMarkerPolicy("on_success"); err != nil || p != MarkerOnSuccess {
		t.Fatalf("on_success = %v, %v", p, err)
	}
	if _, err := ParseMarkerPolicy("never"); err == nil {
		t.Fatal("expected error")
	}
}

func TestCommandAction(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	t.Parallel()

	ok := (&CommandAction{Name: "sh", Args: []string{"-c", "echo backup done"}}).Run(context.Background())
	if !ok.Succeeded || ok.Output != "backup done" {
		t.Fatalf("ok outcome = %+v", ok)
	}

	fail := (&CommandAction{Name: "sh", Args: []string{"-c", "echo disk full >&2; exit 3"}}).Run(context.Background())
	if fail.Succeeded {
		t.Fatal("non-zero exit should fail")
	}
	if !strings.Contains(fail.Output, "disk full") || !strings.Contains(fail.Output, "exit status 3") {
		t.Fatalf("fail output = %q", fail.Output)
	}

	slow := (&CommandAction{Name: "sh", Args: []string{"-c", "exec sleep 5"}, Timeout: 50 * time.Millisecond}).Run(context.Background())
	if slow.Succeeded || !strings.Contains(slow.Output, "timed out") {
		t.Fatalf("slow outcome = %+v", slow)
	}

	missing := (&CommandAction{Name: filepath.Join(t.TempDir(), "nope")}).Run(context.Background())
	if missing.Succeeded || missing.Output == "" {
		t.Fatalf("missing binary outcome = %+v", missing)
	}
}

func TestSQLAction(t *testing.T) {
	t.Parallel()
	dsn := filepath.Join(t.TempDir(), "app.db")
	a, err := OpenSQLAction(dsn, `DELETE FROM password_resets WHERE created_at < '2024-01-01'`, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.DB.Exec(`CREATE TABLE password_resets(email TEXT, created_at TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := a.DB.Exec(`INSERT INTO password_resets VALUES ('a@x', '2023-06-01'), ('b@x', '2023-07-01'), ('c@x', '2024-02-01')`); err != nil {
		t.Fatal(err)
	}

	out := a.Run(context.Background())
	if !out.Succeeded || out.Output != "2 rows affected" {
		t.Fatalf("outcome = %+v", out)
	}

	bad := &SQLAction{DB: a.DB, Query: `DELETE FROM missing_table`}
	if res := bad.Run(context.Background()); res.Succeeded {
		t.Fatalf("expected failure, got %+v", res)
	}
}

func TestHTTPAction(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("denied"))
			return
		}
		_, _ = w.Write([]byte("sitemap generated"))
	}))
	defer srv.Close()

	ok := (&HTTPAction{URL: srv.URL, Header: map[string]string{"Authorization": "Bearer k"}}).Run(context.Background())
	if !ok.Succeeded || !strings.Contains(ok.Output, "sitemap generated") {
		t.Fatalf("ok outcome = %+v", ok)
	}
	denied := (&HTTPAction{URL: srv.URL, Method: "get"}).Run(context.Background())
	if denied.Succeeded || !strings.Contains(denied.Output, "-> 401") {
		t.Fatalf("denied outcome = %+v", denied)
	}
}
