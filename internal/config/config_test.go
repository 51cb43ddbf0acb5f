package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOWBIT_CONFIG", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, 10*time.Second, cfg.API.Timeout)
	require.Equal(t, "http://localhost:3001/remoteEntry.js", cfg.Remote.EntryURL)
	require.Equal(t, "supportTicketsApp", cfg.Remote.Name)
	require.Equal(t, "./App", cfg.Remote.Module)
	require.Equal(t, 100*time.Millisecond, cfg.Remote.Grace)
	require.Equal(t, 10*time.Second, cfg.Tickets.PollInterval)
	require.Equal(t, ":3001", cfg.RemoteHost.Addr)
	require.Empty(t, cfg.Metrics.Addr)
}

func TestLoadFileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "http://api.internal:9000/"

[remote]
entry_url = "http://remote.internal/remoteEntry.js"
grace = "250ms"
`), 0o600))
	t.Setenv("FLOWBIT_CONFIG", path)
	t.Setenv("FLOWBIT_LOG_LEVEL", "debug")

	fs := Flags("flowbit")
	require.NoError(t, fs.Parse([]string{"--remote-entry", "http://override/remoteEntry.js"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, "http://api.internal:9000", cfg.API.BaseURL)
	require.Equal(t, "http://override/remoteEntry.js", cfg.Remote.EntryURL)
	require.Equal(t, 250*time.Millisecond, cfg.Remote.Grace)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadBrokenExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\nbase_url ="), 0o600))
	t.Setenv("FLOWBIT_CONFIG", path)

	_, err := Load(nil)
	require.Error(t, err)
}

func TestAddrFlagIsOptIn(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("FLOWBIT_CONFIG", "")

	require.Nil(t, Flags("flowbit").Lookup("addr"))

	fs := Flags("ticketsremote")
	fs.String("addr", "", "listen address")
	require.NoError(t, fs.Parse([]string{"--addr", ":4001"}))
	cfg, err := Load(fs)
	require.NoError(t, err)
	require.Equal(t, ":4001", cfg.RemoteHost.Addr)
}

func TestLogPathSet(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("FLOWBIT_CONFIG", "")

	cfg, err := Load(nil)
	require.NoError(t, err)
	require.False(t, cfg.Log.PathSet)

	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\npath = \"/tmp/remote.log\"\n"), 0o600))
	t.Setenv("FLOWBIT_CONFIG", path)
	cfg, err = Load(nil)
	require.NoError(t, err)
	require.True(t, cfg.Log.PathSet)
	require.Equal(t, "/tmp/remote.log", cfg.Log.Path)

	t.Setenv("FLOWBIT_CONFIG", "")
	fs := Flags("ticketsremote")
	require.NoError(t, fs.Parse([]string{"--log-path", "-"}))
	cfg, err = Load(fs)
	require.NoError(t, err)
	require.True(t, cfg.Log.PathSet)
	require.Equal(t, "-", cfg.Log.Path)
}
