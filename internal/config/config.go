package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API        APIConfig
	Remote     RemoteConfig
	Storage    StorageConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Tickets    TicketsConfig
	RemoteHost RemoteHostConfig `mapstructure:"remotehost"`
}

// APIConfig holds the ticket/identity API settings.
type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout time.Duration
}

// RemoteConfig describes where the remotely deployed tickets module lives.
type RemoteConfig struct {
	EntryURL string `mapstructure:"entry_url"`
	Name     string
	Module   string
	Grace    time.Duration
	Timeout  time.Duration
}

// StorageConfig holds the local storage database settings.
type StorageConfig struct {
	Path string
}

// LogConfig controls the log file. The terminal belongs to the UI.
type LogConfig struct {
	Path  string
	Level string

	// PathSet is true when log.path came from a file, env or flag rather than the default.
	PathSet bool `mapstructure:"-"`
}

// MetricsConfig enables the prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string
}

// TicketsConfig holds settings for the tickets module.
type TicketsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RemoteHostConfig is used by the ticketsremote command.
type RemoteHostConfig struct {
	Addr string
}

// Flags returns the command line flags understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to config.toml (overrides FLOWBIT_CONFIG)")
	fs.String("api-url", "", "base URL of the ticket API")
	fs.String("remote-entry", "", "URL of the tickets module remote entry script")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("log-path", "", "log file path, - for stderr")
	fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	return fs
}

// Load reads configuration from file, env and flags. Env var overrides use prefix FLOWBIT_.
// fs may be nil; when set it must already be parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()

	home := os.Getenv("HOME")
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 10*time.Second)
	v.SetDefault("remote.entry_url", "http://localhost:3001/remoteEntry.js")
	v.SetDefault("remote.name", "supportTicketsApp")
	v.SetDefault("remote.module", "./App")
	v.SetDefault("remote.grace", 100*time.Millisecond)
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("storage.path", filepath.Join(home, ".local", "share", "flowbit", "flowbit.db"))
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "flowbit", "flowbit.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tickets.poll_interval", 10*time.Second)
	v.SetDefault("remotehost.addr", ":3001")

	v.SetConfigType("toml")

	cfgPath := os.Getenv("FLOWBIT_CONFIG")
	if fs != nil {
		if p, err := fs.GetString("config"); err == nil && p != "" {
			cfgPath = p
		}
	}
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "flowbit"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("FLOWBIT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if fs != nil {
		for key, flag := range map[string]string{
			"api.base_url":     "api-url",
			"remote.entry_url": "remote-entry",
			"log.level":        "log-level",
			"log.path":         "log-path",
			"metrics.addr":     "metrics-addr",
			"remotehost.addr":  "addr",
		} {
			if f := fs.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; an explicit path that fails to parse is not
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgPath != "" {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	_, envSet := os.LookupEnv("FLOWBIT_LOG_PATH")
	c.Log.PathSet = envSet || v.InConfig("log.path") || (fs != nil && fs.Changed("log-path"))
	return c, nil
}
