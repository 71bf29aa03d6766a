// Package config loads engine settings from an optional TOML file plus
// APPCTL_* environment overrides. The environment always wins so a stateless
// invocation can be redirected (APPCTL_REGISTRY) without touching any file.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/appctl/internal/logger"
)

const (
	envPrefix       = "APPCTL"
	DefaultFileName = "appctl.toml"
)

// Config is the full engine configuration.
type Config struct {
	// RegistryPath locates the durable registry database.
	RegistryPath string `mapstructure:"registry_path"`
	// LogLevel controls diagnostic output only, never protocol output.
	LogLevel string `mapstructure:"log_level"`

	// AppLog mirrors captured application output into rotated files.
	AppLog logger.FileConfig `mapstructure:"app_log"`
	// LogBufferLines bounds the per-handle registry log buffer.
	LogBufferLines int `mapstructure:"log_buffer_lines"`

	// GraceWindow is how long launch watches for an immediate crash.
	GraceWindow time.Duration `mapstructure:"grace_window"`
	// StopWait is the graceful-termination wait before SIGKILL escalation.
	StopWait time.Duration `mapstructure:"stop_wait"`

	// SampleInterval is the sidecar's resource sampling period.
	SampleInterval time.Duration `mapstructure:"sample_interval"`
	// SampleFreshness is how stale a stored sample may be before
	// monitor_resources refreshes it synchronously.
	SampleFreshness time.Duration `mapstructure:"sample_freshness"`

	// DevtoolsPortMin/Max bound the debug-port scan.
	DevtoolsPortMin int `mapstructure:"devtools_port_min"`
	DevtoolsPortMax int `mapstructure:"devtools_port_max"`

	// OperationTimeout bounds any single operation, including remote
	// devtools round trips.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`

	// MetricsAddr, when non-empty, makes the capture sidecar serve
	// Prometheus metrics on this local address.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		RegistryPath:     defaultRegistryPath(),
		LogLevel:         "info",
		LogBufferLines:   1000,
		GraceWindow:      300 * time.Millisecond,
		StopWait:         3 * time.Second,
		SampleInterval:   5 * time.Second,
		SampleFreshness:  10 * time.Second,
		DevtoolsPortMin:  9222,
		DevtoolsPortMax:  9250,
		OperationTimeout: 30 * time.Second,
	}
}

// Load reads path (a missing file is not an error) and applies environment
// overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		v := viper.New()
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, err
			}
		} else if err := v.Unmarshal(&cfg); err != nil {
			return Config{}, err
		}
	}

	// Path-override and verbosity variables per the operation contract.
	if p := os.Getenv(envPrefix + "_REGISTRY"); p != "" {
		cfg.RegistryPath = p
	}
	if l := os.Getenv(envPrefix + "_LOG_LEVEL"); l != "" {
		cfg.LogLevel = l
	}
	if cfg.LogBufferLines <= 0 {
		cfg.LogBufferLines = 1000
	}
	if cfg.DevtoolsPortMax < cfg.DevtoolsPortMin {
		cfg.DevtoolsPortMax = cfg.DevtoolsPortMin
	}
	return cfg, nil
}

func defaultRegistryPath() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "appctl", "registry.db")
}
