// Package config loads the daemon configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CHANHIST_SERVER_PORT.
const EnvPrefix = "CHANHIST"

type StorageConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required|int|min:1|max:65535"`
}

type TransportConfig struct {
	Proxy   string        `mapstructure:"proxy" validate:"proxyURL"`
	Timeout time.Duration `mapstructure:"timeout" validate:"required|min:1"`
}

type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required|min:1"`
	Peers    []string      `mapstructure:"peers"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Dir   string `mapstructure:"dir"`
}

type CacheConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Size    int  `mapstructure:"size" validate:"int|min:0"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type IdentityConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type Config struct {
	Path  string `mapstructure:"-"`
	Debug bool   `mapstructure:"-"`

	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Identity  IdentityConfig  `mapstructure:"identity"`
}

// Addr is the listen address of the history server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "~/.chanhist/channels")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5002)
	v.SetDefault("transport.proxy", "")
	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("sync.interval", time.Minute)
	v.SetDefault("sync.peers", []string{})
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.dir", "")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 16)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("identity.path", "~/.chanhist/identity.json")
}

// Load reads the YAML file at path, applies CHANHIST_* environment
// overrides and validates the result. An empty path uses defaults and the
// environment only.
func Load(path string, debug bool) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	conf.Path = path
	conf.Debug = debug
	if debug {
		conf.Logger.Level = "debug"
	}

	var err error
	if conf.Storage.Root, err = expandHome(conf.Storage.Root); err != nil {
		return nil, err
	}
	if conf.Identity.Path, err = expandHome(conf.Identity.Path); err != nil {
		return nil, err
	}
	if conf.Logger.Dir, err = expandHome(conf.Logger.Dir); err != nil {
		return nil, err
	}

	if err := NewValidator(&conf).Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
