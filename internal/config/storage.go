package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	EnvStorageDriver = "PROMPTWIZARD_STORAGE_DRIVER"
	EnvStoragePath   = "PROMPTWIZARD_DB_PATH"
	EnvStorageDSN    = "PROMPTWIZARD_DB_DSN"

	EnvCacheRedisAddr = "PROMPTWIZARD_REDIS_ADDR"
	EnvCacheTTL       = "PROMPTWIZARD_CACHE_TTL"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// StorageConfig selects and configures the repository.
type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

func (c *StorageConfig) Finalize() error {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.Path == "" {
		c.Path = filepath.Join("data", "promptwizard.db")
	}
	if v := os.Getenv(EnvStorageDriver); v != "" {
		c.Driver = v
	}
	if v := os.Getenv(EnvStoragePath); v != "" {
		c.Path = v
	}
	if v := os.Getenv(EnvStorageDSN); v != "" {
		c.DSN = v
	}

	switch c.Driver {
	case DriverSQLite, DriverMemory:
	case DriverPostgres:
		if c.DSN == "" {
			return fmt.Errorf("dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

func (c *StorageConfig) Merge(overlay *StorageConfig) {
	if overlay.Driver != "" {
		c.Driver = overlay.Driver
	}
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.DSN != "" {
		c.DSN = overlay.DSN
	}
}

// CacheConfig configures the optional redis model-catalog cache.
// An empty RedisAddr disables caching.
type CacheConfig struct {
	RedisAddr string `toml:"redis_addr"`
	TTL       string `toml:"ttl"`
}

// Enabled reports whether a redis address is configured.
func (c *CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

func (c *CacheConfig) TTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.TTL)
	return d
}

func (c *CacheConfig) Finalize() error {
	if c.TTL == "" {
		c.TTL = "5m"
	}
	if v := os.Getenv(EnvCacheRedisAddr); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv(EnvCacheTTL); v != "" {
		c.TTL = v
	}
	if _, err := time.ParseDuration(c.TTL); err != nil {
		return fmt.Errorf("invalid ttl: %w", err)
	}
	return nil
}

func (c *CacheConfig) Merge(overlay *CacheConfig) {
	if overlay.RedisAddr != "" {
		c.RedisAddr = overlay.RedisAddr
	}
	if overlay.TTL != "" {
		c.TTL = overlay.TTL
	}
}
