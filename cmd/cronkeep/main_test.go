package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliConfig = `
logging:
  level: error
scheduler:
  enabled: true
  timezone: UTC
storage:
  driver: file
  path: {{dir}}/markers.json
jobs:
  - id: sitemap_generation
    label: Sitemap Generation
    granularity: daily
    earliest: "04:00"
    log_path: {{dir}}/sitemap.log
    action:
      type: command
      command: echo
      args: [sitemap written]
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func cliConfigPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "cronkeep.yaml")
	require.NoError(t, os.WriteFile(p, []byte(strings.ReplaceAll(cliConfig, "{{dir}}", dir)), 0o600))
	return p
}

func TestCheck(t *testing.T) {
	p := cliConfigPath(t)
	out, err := execute(t, "check", "--config", p)
	require.NoError(t, err)
	assert.Contains(t, out, "ok (1 jobs)")

	_, err = execute(t, "check", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTickStatusReset(t *testing.T) {
	p := cliConfigPath(t)

	out, err := execute(t, "tick", "-c", p, "--at", "2024-05-10T03:59:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "ran=0")

	out, err = execute(t, "tick", "-c", p, "--at", "2024-05-10T04:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "ran=1")
	assert.Contains(t, out, "sitemap_generation")

	out, err = execute(t, "tick", "-c", p, "--at", "2024-05-10T04:01:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "ran=0", "second tick in the same day must not rerun")

	out, err = execute(t, "reset", "-c", p, "sitemap_generation")
	require.NoError(t, err)
	assert.Contains(t, out, "reset sitemap_generation")

	out, err = execute(t, "tick", "-c", p, "--at", "2024-05-10T04:02:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "ran=1")

	_, err = execute(t, "reset", "-c", p, "nope")
	assert.Error(t, err)
}

func TestTickRejectsBadTime(t *testing.T) {
	_, err := execute(t, "tick", "-c", cliConfigPath(t), "--at", "yesterday")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "cronkeep dev")
}
