// Package config provides configuration management for conduit, restated
// from internal/common/config: a struct of nested mapstructure-tagged
// sections loaded through viper, with defaults, a config file, and
// CONDUIT_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for conduit.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tabs    TabsConfig    `mapstructure:"tabs"`
	Agents  AgentsConfig  `mapstructure:"agents"`
}

// StoreConfig controls the embedded persistent database (C7).
type StoreConfig struct {
	// Path to the sqlite database file. Empty means
	// <home>/.conduit/conduit.db.
	Path string `mapstructure:"path"`
}

// LoggingConfig mirrors logging.Config's shape so it can be populated by
// viper and handed straight to logging.New.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TabsConfig bounds the Tab Manager (C5).
type TabsConfig struct {
	MaxTabs int `mapstructure:"maxTabs"`
}

// AgentsConfig names the executables used to spawn each supported
// coding-agent CLI, overridable for agents installed under a non-default
// name or path.
type AgentsConfig struct {
	ClaudeBinary   string `mapstructure:"claudeBinary"`
	CodexBinary    string `mapstructure:"codexBinary"`
	OpenCodeBinary string `mapstructure:"openCodeBinary"`
}

// detectDefaultLogFormat picks an environment-aware default: JSON under
// an orchestrated/production environment, console in a terminal.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CONDUIT_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "console"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "")

	v.SetDefault("tabs.maxTabs", 9)

	v.SetDefault("agents.claudeBinary", "claude")
	v.SetDefault("agents.codexBinary", "codex")
	v.SetDefault("agents.openCodeBinary", "opencode")
}

// Load reads configuration from environment variables, a config file, and
// defaults, using default search locations.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration, adding configPath to the search
// locations ahead of the defaults (current directory and
// <home>/.conduit/).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CONDUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("logging.level", "RUST_LOG", "CONDUIT_LOG_LEVEL")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".conduit"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := applyPathDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func applyPathDefaults(cfg *Config) error {
	if cfg.Store.Path != "" {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}
	cfg.Store.Path = filepath.Join(home, ".conduit", "conduit.db")
	return nil
}

func validate(cfg *Config) error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "console": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, console, text")
	}
	if cfg.Tabs.MaxTabs <= 0 {
		errs = append(errs, "tabs.maxTabs must be positive")
	}
	if cfg.Agents.ClaudeBinary == "" || cfg.Agents.CodexBinary == "" || cfg.Agents.OpenCodeBinary == "" {
		errs = append(errs, "agents.*Binary fields must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
