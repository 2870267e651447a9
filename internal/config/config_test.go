package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: UTC
  guard: cas
storage:
  driver: sqlite
  path: ./cronkeep.db
  busy_timeout: 2s
jobs:
  - id: database_backup
    label: Database Backup
    granularity: daily
    earliest: "02:40"
    log_path: storage/logs/backup.log
    action:
      type: command
      command: php
      args: [artisan, backup:run, --only-db]
      timeout: 30m
  - id: password_reset_cleanup
    granularity: hourly
    marker_policy: on_success
    action:
      type: sql
      dsn: ./app.db
      query: DELETE FROM password_resets WHERE created_at < datetime('now', '-1 hour')
  - id: sitemap_generation
    granularity: daily
    action:
      type: http
      url: https://example.test/internal/sitemap
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := NewManager(writeFile(t, t.TempDir(), "cronkeep.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	require.NotNil(t, cfg.Scheduler)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "cas", cfg.Scheduler.Guard)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	require.Len(t, cfg.Jobs, 3)
	assert.Equal(t, []string{"artisan", "backup:run", "--only-db"}, cfg.Jobs[0].Action.Args)
	assert.Equal(t, "on_success", cfg.Jobs[1].MarkerPolicy)
	assert.Same(t, cfg, m.Get())
}

func TestLoadJSONRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	_, err := NewManager(writeFile(t, dir, "c.json", `{"storage":{"driver":"memory"},"jobs":[],"extra":1}`)).Load()
	assert.Error(t, err)

	_, err = NewManager(writeFile(t, dir, "d.json", `{"storage":{"driver":"memory"},"jobs":[]} {}`)).Load()
	assert.Error(t, err, "trailing data must be rejected")
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := func() *Config {
		return &Config{
			Scheduler: &SchedulerConfig{Enabled: true},
			Storage:   StorageConfig{Driver: "memory"},
			Jobs: []JobConfig{{
				ID: "git_push", Granularity: "daily", Earliest: "03:00",
				Action: ActionConfig{Type: "command", Command: "git", Args: []string{"push"}},
			}},
		}
	}
	require.NoError(t, Validate(valid()))

	tests := map[string]func(c *Config){
		"no driver":         func(c *Config) { c.Storage.Driver = "" },
		"file without path": func(c *Config) { c.Storage.Driver = "file" },
		"bad timezone":      func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" },
		"bad guard":         func(c *Config) { c.Scheduler.Guard = "lock" },
		"cas on memory":     func(c *Config) { c.Scheduler.Guard = "cas" },
		"cas on file": func(c *Config) {
			c.Scheduler.Guard = "cas"
			c.Storage = StorageConfig{Driver: "file", Path: "./markers"}
		},
		"duplicate job":      func(c *Config) { c.Jobs = append(c.Jobs, c.Jobs[0]) },
		"empty id":           func(c *Config) { c.Jobs[0].ID = " " },
		"bad granularity":    func(c *Config) { c.Jobs[0].Granularity = "weekly" },
		"bad earliest":       func(c *Config) { c.Jobs[0].Earliest = "25:00" },
		"hourly earliest":    func(c *Config) { c.Jobs[0].Granularity = "hourly" },
		"bad policy":         func(c *Config) { c.Jobs[0].MarkerPolicy = "sometimes" },
		"missing command":    func(c *Config) { c.Jobs[0].Action.Command = "" },
		"unknown action":     func(c *Config) { c.Jobs[0].Action.Type = "ftp" },
		"relative http url":  func(c *Config) { c.Jobs[0].Action = ActionConfig{Type: "http", URL: "/ping"} },
		"bad timeout":        func(c *Config) { c.Jobs[0].Action.Timeout = "soon" },
		"telegram no token":  func(c *Config) { c.Notify.Telegram = &TelegramConfig{Enabled: true, ChatID: 1} },
		"metrics no address": func(c *Config) { c.Metrics.Enabled = true },
	}
	for name, mutate := range tests {
		c := valid()
		mutate(c)
		err := Validate(c)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: err = %v, want ErrInvalidConfig", name, err)
		}
	}

	c := valid()
	c.Scheduler.Guard = "cas"
	c.Storage = StorageConfig{Driver: "sqlite", Path: "./cronkeep.db"}
	require.NoError(t, Validate(c), "cas is allowed on sqlite")
}

func TestSettings(t *testing.T) {
	t.Parallel()
	m := NewManager("unused.yaml")
	_, err := m.Settings(context.Background())
	assert.ErrorIs(t, err, ErrNoConfig)

	m.Commit(&Config{Storage: StorageConfig{Driver: "memory"}})
	st, err := m.Settings(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st, "missing scheduler section means disabled")

	m.Commit(&Config{
		Scheduler: &SchedulerConfig{Enabled: true},
		Jobs: []JobConfig{
			{ID: "database_backup", Earliest: "02:40"},
			{ID: "chat_history_cleanup"},
		},
	})
	st, err = m.Settings(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.True(t, st.Enabled)
	require.NotNil(t, st.Thresholds["database_backup"])
	assert.Equal(t, "02:40", st.Thresholds["database_backup"].String())
	tod, ok := st.Thresholds["chat_history_cleanup"]
	assert.True(t, ok)
	assert.Nil(t, tod, "a job without earliest clears any threshold")
}

func TestReloadPublishesOnlyValidChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "cronkeep.yaml", sampleYAML)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ok, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "unchanged content is not republished")

	writeFile(t, dir, "cronkeep.yaml", "storage: {driver: redis}\n")
	ok, err = m.Reload(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, "sqlite", m.Get().Storage.Driver, "rejected config must not be committed")

	writeFile(t, dir, "cronkeep.yaml", "scheduler: {enabled: false}\nstorage: {driver: memory}\njobs: []\n")
	ok, err = m.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	got := <-ch
	assert.False(t, got.Scheduler.Enabled)
}

func TestWatchPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cronkeep.yaml", "scheduler: {enabled: true}\nstorage: {driver: memory}\njobs: []\n")
	m := NewManager(path)
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "cronkeep.yaml", "scheduler: {enabled: false}\nstorage: {driver: memory}\njobs: []\n")

	select {
	case cfg := <-ch:
		assert.False(t, cfg.Scheduler.Enabled)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
	cancel()
	<-done
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()
	base := &Config{
		Scheduler: &SchedulerConfig{Enabled: true},
		Storage:   StorageConfig{Driver: "memory"},
		Jobs:      []JobConfig{{ID: "a", Granularity: "daily", Earliest: "01:00"}},
	}
	next := *base
	next.Scheduler = &SchedulerConfig{Enabled: false}
	next.Jobs = []JobConfig{{ID: "a", Granularity: "daily", Earliest: "02:00"}}

	changed, _, restart := SummarizeChange(base, &next)
	assert.Equal(t, []string{"scheduler", "jobs.earliest"}, changed)
	assert.False(t, restart, "enable flag and thresholds apply live")

	next.Storage.Driver = "file"
	_, _, restart = SummarizeChange(base, &next)
	assert.True(t, restart)
}

func TestExampleConfigIsValid(t *testing.T) {
	cfg, err := NewManager(filepath.Join("..", "..", "cronkeep.example.yaml")).Load()
	require.NoError(t, err)
	assert.Len(t, cfg.Jobs, 8)

	s := SchedulerSettings(cfg)
	require.NotNil(t, s)
	assert.True(t, s.Enabled)
	require.NotNil(t, s.Thresholds["database_backup"])
	assert.Equal(t, "02:40", s.Thresholds["database_backup"].String())
	assert.Nil(t, s.Thresholds["password_reset_cleanup"])
}
