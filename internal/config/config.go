// Package config loads promptwizard configuration from config.toml, an
// optional config.<env>.toml overlay, and PROMPTWIZARD_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvPromptWizardEnv = "PROMPTWIZARD_ENV"
	EnvConfigDir       = "PROMPTWIZARD_CONFIG_DIR"
	EnvLogMode         = "PROMPTWIZARD_LOG_MODE"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Storage     StorageConfig     `toml:"storage"`
	Cache       CacheConfig       `toml:"cache"`
	LLM         LLMConfig         `toml:"llm"`
	Persistence PersistenceConfig `toml:"persistence"`
	Log         LogConfig         `toml:"log"`
}

// LogConfig selects the logger mode: "dev" or "prod".
type LogConfig struct {
	Mode string `toml:"mode"`
}

// Env returns the PROMPTWIZARD_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvPromptWizardEnv); env != "" {
		return env
	}
	return "local"
}

// Load reads config files from PROMPTWIZARD_CONFIG_DIR (or the working
// directory) and finalizes all values. Missing files are not an error.
func Load() (*Config, error) {
	return LoadDir(os.Getenv(EnvConfigDir))
}

// LoadDir is Load with an explicit directory.
func LoadDir(dir string) (*Config, error) {
	cfg := &Config{}

	base := filepath.Join(dir, BaseConfigFile)
	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(dir); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}
	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	if overlay.Log.Mode != "" {
		c.Log.Mode = overlay.Log.Mode
	}
	c.Server.Merge(&overlay.Server)
	c.Storage.Merge(&overlay.Storage)
	c.Cache.Merge(&overlay.Cache)
	c.LLM.Merge(&overlay.LLM)
	c.Persistence.Merge(&overlay.Persistence)
}

// Finalize applies defaults, environment overrides, and validation.
func (c *Config) Finalize() error {
	if c.Log.Mode == "" {
		c.Log.Mode = "dev"
	}
	if v := os.Getenv(EnvLogMode); v != "" {
		c.Log.Mode = v
	}
	if c.Log.Mode != "dev" && c.Log.Mode != "prod" {
		return fmt.Errorf("log: invalid mode %q", c.Log.Mode)
	}

	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Storage.Finalize(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Cache.Finalize(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := c.LLM.Finalize(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Persistence.Finalize(); err != nil {
		return fmt.Errorf("persistence: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func overlayPath(dir string) string {
	if env := os.Getenv(EnvPromptWizardEnv); env != "" {
		path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
