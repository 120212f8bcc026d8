// Package config loads the engine's configuration options
// (checkin.directory.max_leaf_entries, checkin.directory.max_branch_children,
// tag.cache_ttl, watch.ttl, ignore) via github.com/spf13/viper, the way
// bennypowers-cem's cmd/root.go wires viper: defaults set in code, overridden
// by a config file and environment variables, and ultimately by CLI flags
// bound with viper.BindPFlag.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Keys are the viper key names for the recognized options in §6.
const (
	KeyMaxLeafEntries    = "checkin.directory.max_leaf_entries"
	KeyMaxBranchChildren = "checkin.directory.max_branch_children"
	KeyTagCacheTTL       = "tag.cache_ttl"
	KeyWatchTTL          = "watch.ttl"
	KeyIgnore            = "ignore"
	KeyStoreDir          = "store.dir"
	KeyCacheDir          = "cache.dir"
	KeyRegistryURL       = "registry.url"
)

const (
	defaultMaxLeafEntries    = 4096
	defaultMaxBranchChildren = 256
	defaultTagCacheTTL       = 5 * time.Minute
	defaultWatchTTL          = 30 * time.Minute
	defaultStoreDir          = ".tangram/store"
	defaultCacheDir          = ".tangram/cache"
)

// Config is the resolved set of options a check-in run uses.
type Config struct {
	MaxLeafEntries    int
	MaxBranchChildren int
	TagCacheTTL       time.Duration
	WatchTTL          time.Duration
	Ignore            []string
	StoreDir          string
	CacheDir          string
	RegistryURL       string
}

// New creates a *viper.Viper seeded with this package's defaults. Callers
// add a config file path and bind CLI flags on top before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyMaxLeafEntries, defaultMaxLeafEntries)
	v.SetDefault(KeyMaxBranchChildren, defaultMaxBranchChildren)
	v.SetDefault(KeyTagCacheTTL, defaultTagCacheTTL)
	v.SetDefault(KeyWatchTTL, defaultWatchTTL)
	v.SetDefault(KeyIgnore, []string{})
	v.SetDefault(KeyStoreDir, defaultStoreDir)
	v.SetDefault(KeyCacheDir, defaultCacheDir)
	v.SetDefault(KeyRegistryURL, "")
	v.SetConfigName("tangram")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("tangram")
	v.AutomaticEnv()
	return v
}

// Load reads configPath (if non-empty) or searches the default config
// locations, then materializes a Config from v's current state. Finding no
// config file in the default locations is not an error: defaults (and any
// env/flag overrides already applied to v) stand on their own. An explicit
// configPath that cannot be read is an error.
func Load(v *viper.Viper, configPath string) (Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return Config{
		MaxLeafEntries:    v.GetInt(KeyMaxLeafEntries),
		MaxBranchChildren: v.GetInt(KeyMaxBranchChildren),
		TagCacheTTL:       v.GetDuration(KeyTagCacheTTL),
		WatchTTL:          v.GetDuration(KeyWatchTTL),
		Ignore:            v.GetStringSlice(KeyIgnore),
		StoreDir:          v.GetString(KeyStoreDir),
		CacheDir:          v.GetString(KeyCacheDir),
		RegistryURL:       v.GetString(KeyRegistryURL),
	}, nil
}
