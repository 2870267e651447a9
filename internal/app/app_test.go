package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cronkeep/internal/scheduler"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "cronkeep.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const appConfig = `
logging:
  level: error
scheduler:
  enabled: true
  timezone: UTC
storage:
  driver: sqlite
  path: {{dir}}/markers.db
jobs:
  - id: database_backup
    label: Database Backup
    granularity: daily
    earliest: "02:40"
    log_path: {{dir}}/logs/backup.log
    action:
      type: command
      command: echo
      args: [Backup completed]
  - id: files_backup
    label: Files Backup
    granularity: daily
    earliest: "03:00"
    log_path: {{dir}}/logs/backup.log
    action:
      type: command
      command: echo
      args: [Files archived]
  - id: password_reset_cleanup
    granularity: hourly
    action:
      type: sql
      dsn: {{dir}}/app.db
      query: CREATE TABLE IF NOT EXISTS password_resets (email TEXT)
`

func newTestApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, strings.ReplaceAll(appConfig, "{{dir}}", dir)))
	require.NoError(t, err)
	return a, dir
}

func TestTickRunsEligibleJobsAndSharesLog(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()

	rep := a.Tick(ctx, time.Date(2024, 5, 10, 2, 39, 0, 0, time.UTC))
	assert.Equal(t, 1, rep.Ran, "only the hourly job is past its threshold")

	rep = a.Tick(ctx, time.Date(2024, 5, 10, 3, 5, 0, 0, time.UTC))
	assert.Equal(t, 3, rep.Ran)
	assert.Equal(t, 0, rep.Failed)

	require.NoError(t, a.Close())

	b, err := os.ReadFile(filepath.Join(dir, "logs", "backup.log"))
	require.NoError(t, err)
	assert.Equal(t,
		"[2024-05-10 03:05:00] Database Backup\nBackup completed\n[2024-05-10 03:05:00] Files Backup\nFiles archived\n",
		string(b))
}

func TestMarkersPersistAcrossRestart(t *testing.T) {
	a, dir := newTestApp(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, a.Tick(ctx, now).Ran)
	require.NoError(t, a.Close())

	b, err := New(filepath.Join(dir, "cronkeep.yaml"))
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 0, b.Tick(ctx, now.Add(time.Minute)).Ran)

	markers, err := b.Markers(ctx)
	require.NoError(t, err)
	assert.Len(t, markers, 3)
}

func TestResetMakesJobEligibleAgain(t *testing.T) {
	a, _ := newTestApp(t)
	defer a.Close()
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 4, 0, 0, 0, time.UTC)
	a.Tick(ctx, now)

	require.NoError(t, a.Reset(ctx, "database_backup"))
	rep := a.Tick(ctx, now.Add(time.Minute))
	require.Equal(t, 1, rep.Ran)
	assert.Equal(t, "database_backup", rep.Results[0].JobID)

	assert.True(t, errors.Is(a.Reset(ctx, "nope"), ErrUnknownJob))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	_, err := New(writeConfig(t, dir, "storage: {driver: memory}\njobs:\n  - id: x\n    granularity: weekly\n    action: {type: command, command: \"true\"}\n"))
	assert.Error(t, err)
}

func TestMissingSchedulerSectionDisables(t *testing.T) {
	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, "storage: {driver: memory}\njobs:\n  - id: x\n    granularity: hourly\n    action: {type: command, command: echo}\n"))
	require.NoError(t, err)
	defer a.Close()
	rep := a.Tick(context.Background(), time.Now())
	assert.Equal(t, scheduler.SkipConfigMissing, rep.Skipped, "a missing scheduler section runs nothing")
}

func TestNewReleasesLogFileWhenStoreFails(t *testing.T) {
	if _, err := os.ReadDir("/proc/self/fd"); err != nil {
		t.Skip("no /proc/self/fd")
	}
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	logPath := filepath.Join(dir, "cronkeep.log")

	_, err := New(writeConfig(t, dir, "logging:\n  level: error\n  file: {enabled: true, path: "+logPath+"}\n"+
		"storage: {driver: file, path: "+filepath.Join(blocker, "markers")+"}\n"+
		"jobs:\n  - id: x\n    granularity: hourly\n    action: {type: command, command: echo}\n"))
	require.Error(t, err)

	fds, err := os.ReadDir("/proc/self/fd")
	require.NoError(t, err)
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join("/proc/self/fd", fd.Name()))
		if err != nil {
			continue
		}
		assert.NotEqual(t, logPath, target, "log file left open after failed New")
	}
}
