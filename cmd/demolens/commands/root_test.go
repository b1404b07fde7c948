package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"demolens/analyser"
	"demolens/cache"
	"demolens/demo/demotest"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["analyse"])
	assert.True(t, names["index"])
	assert.True(t, names["export"])

	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
	assert.NotNil(t, root.PersistentFlags().Lookup("cache-dir"))
}

func TestSetupLogging_RejectsBadLevel(t *testing.T) {
	viper.Set("log_level", "chatty")
	defer viper.Set("log_level", "info")

	require.Error(t, setupLogging())

	viper.Set("log_level", "debug")
	require.NoError(t, setupLogging())
}

func TestLoadCached(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := cache.New(filepath.Join(dir, "cache"))

	b := demotest.NewBuilder()
	b.Connect(2, "alice", "[U:1:101]")
	b.Tick(100)
	raw := b.Bytes()
	path := filepath.Join(dir, "match.dem")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	// Cold cache misses.
	_, ok := loadCached(store, path)
	assert.False(t, ok)

	key, _, err := analyser.HashDemoFile(path)
	require.NoError(t, err)
	demo, err := analyser.Analyse(raw, nil)
	require.NoError(t, err)
	require.NoError(t, store.Store(key, demo))

	got, ok := loadCached(store, path)
	require.True(t, ok)
	assert.Equal(t, demo.ServerName, got.ServerName)

	// A file that cannot be fingerprinted is a miss, not a crash.
	_, ok = loadCached(store, filepath.Join(dir, "missing.dem"))
	assert.False(t, ok)
}
