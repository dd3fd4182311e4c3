package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmalloy/gitbar/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
github_token: tok
github_username: testuser
poll_interval: 5m
call_timeout: 10s
listen_addr: 127.0.0.1:9999
db_path: /tmp/state.db
notify_command: notify-send {title} {message}
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.GitHubToken)
	assert.Equal(t, "testuser", cfg.GitHubUsername)
	assert.Equal(t, 5*time.Minute, cfg.PollInterval)
	assert.Equal(t, 10*time.Second, cfg.CallTimeout)
	assert.Equal(t, "127.0.0.1:9999", cfg.ListenAddr)
	assert.Equal(t, "/tmp/state.db", cfg.DBPath)
	assert.Equal(t, "notify-send {title} {message}", cfg.NotifyCommand)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "github_token: file-tok\ngithub_username: file-user\n")
	t.Setenv("GITBAR_GITHUB_TOKEN", "env-tok")
	t.Setenv("GITBAR_POLL_INTERVAL", "10m")

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, "env-tok", cfg.GitHubToken)
	assert.Equal(t, "file-user", cfg.GitHubUsername)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("GITBAR_GITHUB_TOKEN", "tok")
	t.Setenv("GITBAR_GITHUB_USERNAME", "testuser")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))

	require.NoError(t, err)
	assert.Equal(t, config.DefaultPollInterval, cfg.PollInterval)
	assert.Equal(t, config.DefaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, config.DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, "gitbar.db", cfg.DBPath)
}

func TestLoad_EnforcesPollIntervalFloor(t *testing.T) {
	path := writeConfig(t, `
github_token: tok
github_username: testuser
poll_interval: 1s
`)

	cfg, err := config.Load(path)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
}

func TestLoad_MissingCredentials(t *testing.T) {
	path := writeConfig(t, "listen_addr: 127.0.0.1:9999\n")

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github_token")

	path = writeConfig(t, "github_token: tok\n")
	_, err = config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github_username")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("GITBAR_GITHUB_TOKEN", "tok")
	t.Setenv("GITBAR_GITHUB_USERNAME", "testuser")
	t.Setenv("GITBAR_POLL_INTERVAL", "soon")

	_, err := config.Load("")

	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "github_token: [unclosed\n")

	_, err := config.Load(path)

	assert.Error(t, err)
}
