// Package harnessconfig loads the run-level configuration a harness needs
// outside of the Scenario plan itself: the readiness timeout, the drain
// window, the slow-environment multiplier, metrics settings, and logging. It follows the same viper-based
// Load/LoadFromEnv shape the teacher's pkg/config package uses for node
// configuration.
package harnessconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"chainharness/chainerr"
	"chainharness/runner"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified run-level configuration for a harness invocation.
type Config struct {
	Runner struct {
		DrainWindow          time.Duration `mapstructure:"drain_window"`
		ReadinessTimeout     time.Duration `mapstructure:"readiness_timeout"`
		SlowEnvironment      bool          `mapstructure:"slow_environment"`
		SlowEnvironmentScale float64       `mapstructure:"slow_environment_scale"`
	} `mapstructure:"runner"`

	Metrics struct {
		Enabled  bool   `mapstructure:"enabled"`
		BaseURL  string `mapstructure:"base_url"`
		PushAddr string `mapstructure:"push_addr"`
	} `mapstructure:"metrics"`

	Logging struct {
		Level string `mapstructure:"level"`
		JSON  bool   `mapstructure:"json"`
		File  string `mapstructure:"file"`
	} `mapstructure:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// setDefaults seeds viper with the values every field falls back to when
// absent from both the config file and the environment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("runner.drain_window", runner.DefaultDrainWindow)
	v.SetDefault("runner.readiness_timeout", runner.DefaultReadinessTimeout)
	v.SetDefault("runner.slow_environment", false)
	v.SetDefault("runner.slow_environment_scale", 2.0)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.json", false)
}

// Load reads harness.yaml (optionally overridden by an env-specific file),
// merges CHAINHARNESS_*-prefixed environment variables, and stores the
// result in AppConfig.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("harness")
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, chainerr.Wrap(err, "load harness config")
		}
	}

	if env != "" {
		v.SetConfigName(env)
		if err := v.MergeInConfig(); err != nil {
			return nil, chainerr.Wrap(err, fmt.Sprintf("merge %s harness config", env))
		}
	}

	v.SetEnvPrefix("chainharness")
	v.AutomaticEnv()

	if err := v.Unmarshal(&AppConfig); err != nil {
		return nil, chainerr.Wrap(err, "unmarshal harness config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHAINHARNESS_ENV environment
// variable to pick the overlay file, mirroring the teacher's
// LoadFromEnv/EnvOrDefault chain.
func LoadFromEnv() (*Config, error) {
	return Load(envOrDefault("CHAINHARNESS_ENV", ""))
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// EffectiveReadinessTimeout applies the slow-environment multiplier to the
// configured readiness timeout (spec.md §5: "defaults to 60s, doubled in
// slow environment mode").
func (c *Config) EffectiveReadinessTimeout() time.Duration {
	if !c.Runner.SlowEnvironment {
		return c.Runner.ReadinessTimeout
	}
	scale := c.Runner.SlowEnvironmentScale
	if scale <= 0 {
		scale = 2.0
	}
	return time.Duration(float64(c.Runner.ReadinessTimeout) * scale)
}
