package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	EnvLLMSimulate       = "PROMPTWIZARD_LLM_SIMULATE"
	EnvLLMSimulatedDelay = "PROMPTWIZARD_LLM_SIMULATED_DELAY"
	EnvLLMDefaultModel   = "PROMPTWIZARD_LLM_MODEL"
	EnvLLMMaxParallel    = "PROMPTWIZARD_LLM_MAX_PARALLEL"
	EnvLLMOllamaHost     = "OLLAMA_HOST"

	EnvPersistenceAttempts        = "PROMPTWIZARD_PERSISTENCE_ATTEMPTS"
	EnvPersistenceInitialInterval = "PROMPTWIZARD_PERSISTENCE_INITIAL_INTERVAL"
	EnvPersistenceTimeout         = "PROMPTWIZARD_PERSISTENCE_TIMEOUT"
)

// LLMConfig configures model invocation. Simulate defaults to true; real
// provider clients are used only when it is turned off.
type LLMConfig struct {
	Simulate       *bool  `toml:"simulate"`
	SimulatedDelay string `toml:"simulated_delay"`
	DefaultModel   string `toml:"default_model"`
	MaxParallel    int    `toml:"max_parallel"`
	OllamaHost     string `toml:"ollama_host"`
}

// Simulated reports whether the simulator is in use.
func (c *LLMConfig) Simulated() bool {
	return c.Simulate == nil || *c.Simulate
}

func (c *LLMConfig) SimulatedDelayDuration() time.Duration {
	d, _ := time.ParseDuration(c.SimulatedDelay)
	return d
}

func (c *LLMConfig) Finalize() error {
	if c.SimulatedDelay == "" {
		c.SimulatedDelay = "2s"
	}
	if c.DefaultModel == "" {
		c.DefaultModel = "gpt-4"
	}
	if c.MaxParallel == 0 {
		c.MaxParallel = 4
	}
	if c.OllamaHost == "" {
		c.OllamaHost = "http://localhost:11434"
	}

	if v := os.Getenv(EnvLLMSimulate); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvLLMSimulate, err)
		}
		c.Simulate = &b
	}
	if v := os.Getenv(EnvLLMSimulatedDelay); v != "" {
		c.SimulatedDelay = v
	}
	if v := os.Getenv(EnvLLMDefaultModel); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv(EnvLLMMaxParallel); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
	if v := os.Getenv(EnvLLMOllamaHost); v != "" {
		c.OllamaHost = v
	}

	if _, err := time.ParseDuration(c.SimulatedDelay); err != nil {
		return fmt.Errorf("invalid simulated_delay: %w", err)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be positive: %d", c.MaxParallel)
	}
	return nil
}

func (c *LLMConfig) Merge(overlay *LLMConfig) {
	if overlay.Simulate != nil {
		b := *overlay.Simulate
		c.Simulate = &b
	}
	if overlay.SimulatedDelay != "" {
		c.SimulatedDelay = overlay.SimulatedDelay
	}
	if overlay.DefaultModel != "" {
		c.DefaultModel = overlay.DefaultModel
	}
	if overlay.MaxParallel != 0 {
		c.MaxParallel = overlay.MaxParallel
	}
	if overlay.OllamaHost != "" {
		c.OllamaHost = overlay.OllamaHost
	}
}

// PersistenceConfig tunes the best-effort session mirror.
// Attempts of 1 means no retry.
type PersistenceConfig struct {
	Attempts        int    `toml:"attempts"`
	InitialInterval string `toml:"initial_interval"`
	Timeout         string `toml:"timeout"`
}

func (c *PersistenceConfig) InitialIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.InitialInterval)
	return d
}

func (c *PersistenceConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

func (c *PersistenceConfig) Finalize() error {
	if c.Attempts == 0 {
		c.Attempts = 1
	}
	if c.InitialInterval == "" {
		c.InitialInterval = "100ms"
	}
	if c.Timeout == "" {
		c.Timeout = "5s"
	}
	if v := os.Getenv(EnvPersistenceAttempts); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Attempts = n
		}
	}
	if v := os.Getenv(EnvPersistenceInitialInterval); v != "" {
		c.InitialInterval = v
	}
	if v := os.Getenv(EnvPersistenceTimeout); v != "" {
		c.Timeout = v
	}

	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be positive: %d", c.Attempts)
	}
	if _, err := time.ParseDuration(c.InitialInterval); err != nil {
		return fmt.Errorf("invalid initial_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	return nil
}

func (c *PersistenceConfig) Merge(overlay *PersistenceConfig) {
	if overlay.Attempts != 0 {
		c.Attempts = overlay.Attempts
	}
	if overlay.InitialInterval != "" {
		c.InitialInterval = overlay.InitialInterval
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
}
