package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// setupHome points HOME at a temp dir and writes a default config there.
func setupHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(home)

	path := filepath.Join(home, "config.toml")
	_, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "vamosnene dev\n", out)
}

func TestConfigInit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "nested", "config.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[server]")
	assert.Contains(t, string(data), "f1latam")

	_, err = execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)
}

func TestConfigInit_DefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".config", "vamosnene", "config.toml"))
}

func TestSourcesListAndAdd(t *testing.T) {
	cfgPath := setupHome(t)
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	base := []string{"--config", cfgPath, "--db", dbPath, "--log-level", "off", "--quiet"}

	out, err := execute(t, append(base, "sources", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "f1latam")
	assert.Contains(t, out, "motorsport-latam")
	assert.Contains(t, out, "never")

	out, err = execute(t, append(base, "sources", "add", "--code", "racer", "--name", "Racer", "--feed", "https://racer.example.com/rss/")...)
	require.NoError(t, err)
	assert.Contains(t, out, "source racer saved")

	out, err = execute(t, append(base, "sources", "list")...)
	require.NoError(t, err)
	assert.Contains(t, out, "https://racer.example.com/rss/")

	_, err = execute(t, append(base, "sources", "add", "--code", "Bad Code", "--feed", "https://x.example.com/rss")...)
	require.Error(t, err)

	_, err = execute(t, append(base, "sources", "add", "--code", "local", "--feed", "http://127.0.0.1/rss")...)
	require.Error(t, err)
}

func TestSync_RejectsUnknownJob(t *testing.T) {
	_, err := execute(t, "sync", "alerts")
	require.Error(t, err)
}
