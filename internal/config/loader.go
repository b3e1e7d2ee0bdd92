package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// validLogLevels are the accepted values for server.log_level.
var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Load reads the YAML configuration file at path, applies environment
// overrides, and returns a validated [Config]. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyEnvOverrides(cfg, os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides mutates cfg in place from the environment-variable names
// listed in spec.md §6, each optional: a variable absent from lookup leaves
// the YAML-decoded value untouched. lookup is injected so tests can supply a
// fixed map instead of the real process environment.
func ApplyEnvOverrides(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("MIN_SPEAK_INTERVAL"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Brain.MinSpeakInterval = f
		}
	}
	if v, ok := lookup("MAX_SPEAK_INTERVAL"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Brain.MaxSpeakInterval = f
		}
	}
	if v, ok := lookup("DEFAULT_COOLDOWN"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Brain.DefaultCooldown = f
		}
	}
	if v, ok := lookup("HIGH_PRIORITY_THRESHOLD"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Brain.HighPriorityThreshold = n
		}
	}
	if v, ok := lookup("AUTO_SPEAK_PRIORITY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Brain.AutoSpeakPriority = n
		}
	}
	if v, ok := lookup("ENABLE_STATE_MACHINE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Flow.Enabled = b
		}
	}
	if v, ok := lookup("AUTO_STATE_TRANSITION"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Flow.AutoTransition = b
		}
	}
	if v, ok := lookup("VIEWER_UPDATE_INTERVAL"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Flow.ViewerUpdateInterval = time.Duration(f * float64(time.Second))
		}
	}
	if v, ok := lookup("METRICS_EXPORT_INTERVAL"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Metrics.ExportInterval = time.Duration(f * float64(time.Second))
		}
	}
	if v, ok := lookup("METRICS_EXPORT_PATH"); ok {
		cfg.Metrics.ExportPath = v
	}
	if v, ok := lookup("LOG_DIR"); ok {
		cfg.Server.LogDir = v
	}
	if v, ok := lookup("BUS_URL"); ok {
		cfg.Bus.URL = v
	}
}

// Validate checks that cfg contains a coherent set of values, returning a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !validLogLevels[cfg.Server.LogLevel] {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Brain.MinSpeakInterval < 0 {
		errs = append(errs, fmt.Errorf("brain.min_speak_interval must be >= 0"))
	}
	if cfg.Brain.MaxSpeakInterval > 0 && cfg.Brain.MinSpeakInterval > cfg.Brain.MaxSpeakInterval {
		errs = append(errs, fmt.Errorf("brain.min_speak_interval (%v) must not exceed brain.max_speak_interval (%v)", cfg.Brain.MinSpeakInterval, cfg.Brain.MaxSpeakInterval))
	}
	if cfg.Brain.HighPriorityThreshold != 0 && cfg.Brain.AutoSpeakPriority != 0 && cfg.Brain.HighPriorityThreshold >= cfg.Brain.AutoSpeakPriority {
		errs = append(errs, fmt.Errorf("brain.high_priority_threshold (%d) must be less than brain.auto_speak_priority (%d)", cfg.Brain.HighPriorityThreshold, cfg.Brain.AutoSpeakPriority))
	}
	if cfg.Bus.Prefetch < 0 {
		errs = append(errs, fmt.Errorf("bus.prefetch must be >= 0"))
	}

	return errors.Join(errs...)
}
