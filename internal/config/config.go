// Package config loads client settings from a TOML file and TALLY_ env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the client configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	Currency string `mapstructure:"currency"`

	Remote  RemoteConfig  `mapstructure:"remote"`
	User    UserConfig    `mapstructure:"user"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Log     LogConfig     `mapstructure:"log"`
}

// RemoteConfig points at the remote data service.
type RemoteConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// UserConfig overrides the owner id from saved credentials.
type UserConfig struct {
	ID string `mapstructure:"id"`
}

// StorageConfig bounds the local key/value file.
type StorageConfig struct {
	QuotaBytes int64 `mapstructure:"quota_bytes"`
}

// CacheConfig controls collection snapshots.
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SyncConfig controls automatic queue draining.
type SyncConfig struct {
	Auto         bool          `mapstructure:"auto"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

const envPrefix = "TALLY"

// Dir returns the directory holding config.toml and credentials.
func Dir() string {
	if v := os.Getenv("TALLY_CONFIG_DIR"); v != "" {
		return v
	}
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "tally")
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "tally")
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "tally")
	}
	return ".tally"
}

// Load reads configuration from file and env. An explicit path wins over
// TALLY_CONFIG, which wins over <Dir()>/config.toml. A missing file is not
// an error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("currency", "BRL")
	v.SetDefault("remote.url", "http://localhost:8080")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("user.id", "")
	v.SetDefault("storage.quota_bytes", 5<<20)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("sync.auto", true)
	v.SetDefault("sync.probe_timeout", "3s")
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("TALLY_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(Dir())
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.Currency = strings.ToUpper(c.Currency)
	return c, nil
}

// Save writes cfg as TOML to path, creating its directory. The API key is
// not written; it lives with the saved credentials.
func Save(path string, cfg Config) error {
	if path == "" {
		path = filepath.Join(Dir(), "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("data_dir", cfg.DataDir)
	v.Set("currency", cfg.Currency)
	v.Set("remote.url", cfg.Remote.URL)
	v.Set("user.id", cfg.User.ID)
	v.Set("storage.quota_bytes", cfg.Storage.QuotaBytes)
	v.Set("cache.ttl", cfg.Cache.TTL.String())
	v.Set("sync.auto", cfg.Sync.Auto)
	v.Set("sync.probe_timeout", cfg.Sync.ProbeTimeout.String())
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
