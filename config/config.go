// Package config loads the session-level settings recognized by stepwise
// callers from a config file and STEPWISE_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the settings a caller binds into a stepwise.Solver.
type Config struct {
	// Backend selects which registered provider factory to bind.
	Backend string `mapstructure:"backend"`

	// Model is the backend-specific model identifier, passed through to
	// every invocation unchanged.
	Model string `mapstructure:"model"`

	// Temperature controls generation randomness, in [0, 1].
	Temperature float64 `mapstructure:"temperature"`

	// MaxConcurrentInvocations bounds in-flight model calls per session.
	MaxConcurrentInvocations int `mapstructure:"max_concurrent_invocations"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Temperature:              0.2,
		MaxConcurrentInvocations: 1,
	}
}

// setDefaults registers default values with the given viper instance.
func setDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("model", defaults.Model)
	v.SetDefault("temperature", defaults.Temperature)
	v.SetDefault("max_concurrent_invocations", defaults.MaxConcurrentInvocations)
}

// Load reads configuration from the given file (YAML, TOML, or JSON as
// determined by its extension). Environment variables prefixed with
// STEPWISE_ override file values; an empty path loads defaults and
// environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STEPWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configured values against their allowed ranges.
func (c Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 1 {
		return fmt.Errorf("temperature must be in [0, 1], got %g", c.Temperature)
	}
	if c.MaxConcurrentInvocations < 1 {
		return fmt.Errorf("max_concurrent_invocations must be positive, got %d", c.MaxConcurrentInvocations)
	}
	return nil
}
