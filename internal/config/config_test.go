package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	v := New()
	dir := t.TempDir()
	v.AddConfigPath(dir) // no tangram.yaml present; defaults must stand alone

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, defaultMaxLeafEntries, cfg.MaxLeafEntries)
	require.Equal(t, defaultMaxBranchChildren, cfg.MaxBranchChildren)
	require.Equal(t, defaultTagCacheTTL, cfg.TagCacheTTL)
	require.Equal(t, defaultWatchTTL, cfg.WatchTTL)
	require.Equal(t, defaultStoreDir, cfg.StoreDir)
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tangram.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
checkin:
  directory:
    max_leaf_entries: 10
tag:
  cache_ttl: 2m
ignore:
  - "*.tmp"
`), 0o644))

	v := New()
	cfg, err := Load(v, path)
	require.NoError(t, err)

	require.Equal(t, 10, cfg.MaxLeafEntries)
	require.Equal(t, 2*time.Minute, cfg.TagCacheTTL)
	require.Equal(t, []string{"*.tmp"}, cfg.Ignore)
	// Unset keys keep their defaults.
	require.Equal(t, defaultMaxBranchChildren, cfg.MaxBranchChildren)
}

func TestLoad_MissingExplicitConfigFileIsAnError(t *testing.T) {
	v := New()
	_, err := Load(v, filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}
