// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "WISHLIST"
	configFileName = "config"

	RemoteGitHub = "github"
	RemoteMemory = "memory"
)

type Config struct {
	Server struct {
		Host string `mapstructure:"host" json:"host"`
		Port int    `mapstructure:"port" json:"port"`
	} `mapstructure:"server" json:"server"`

	Database struct {
		Path string `mapstructure:"path" json:"path"`
	} `mapstructure:"database" json:"database"`

	Remote struct {
		Kind       string `mapstructure:"kind" json:"kind"` // github, memory
		Token      string `mapstructure:"token" json:"token"`
		APIURL     string `mapstructure:"api_url" json:"api_url"`
		RetryCount int    `mapstructure:"retry_count" json:"retry_count"`
		CacheSize  int    `mapstructure:"cache_size" json:"cache_size"`
	} `mapstructure:"remote" json:"remote"`

	Sync struct {
		FlushDelay       time.Duration `mapstructure:"flush_delay" json:"flush_delay"`
		Interval         time.Duration `mapstructure:"interval" json:"interval"` // 0 disables periodic syncs
		FetchConcurrency int           `mapstructure:"fetch_concurrency" json:"fetch_concurrency"`
	} `mapstructure:"sync" json:"sync"`

	Workspace struct {
		Path string `mapstructure:"path" json:"path"` // empty disables the mirror
	} `mapstructure:"workspace" json:"workspace"`

	LogLevel string `mapstructure:"log_level" json:"log_level"` // debug, info, warn, error
	LogFile  string `mapstructure:"log_file" json:"log_file"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".wishlist"
	}
	return filepath.Join(home, ".config", "wishlist")
}

func setDefaults(v *viper.Viper) {
	dir := DefaultDir()

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7420)
	v.SetDefault("database.path", filepath.Join(dir, "db"))
	v.SetDefault("remote.kind", RemoteGitHub)
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.api_url", "https://api.github.com")
	v.SetDefault("remote.retry_count", 3)
	v.SetDefault("remote.cache_size", 256)
	v.SetDefault("sync.flush_delay", 30*time.Second)
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("sync.fetch_concurrency", 4)
	v.SetDefault("workspace.path", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"db":        "database.path",
	"remote":    "remote.kind",
	"token":     "remote.token",
	"log-level": "log_level",
	"addr-port": "server.port",
	"workspace": "workspace.path",
}

// Load reads the JSON config at path, or searches the working directory and
// DefaultDir when path is empty. A missing file falls back to defaults.
// Values from WISHLIST_* environment variables and any changed flags win.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("json")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDir())
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Remote.Kind {
	case RemoteGitHub:
		if c.Remote.Token == "" {
			return fmt.Errorf("remote.token is required for the %s remote", RemoteGitHub)
		}
	case RemoteMemory:
	default:
		return fmt.Errorf("unknown remote.kind %q", c.Remote.Kind)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Sync.FlushDelay < 0 {
		return fmt.Errorf("sync.flush_delay cannot be negative")
	}
	if c.Sync.FetchConcurrency < 1 {
		return fmt.Errorf("sync.fetch_concurrency must be at least 1")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}
