package config

import (
	"time"

	"github.com/vhoststream/core/internal/brain"
)

// ToBrainConfig builds a [brain.Config] starting from [brain.DefaultConfig]
// and overriding the five thresholds spec.md §6 exposes as configuration;
// every other table (intent priority, state modifiers, viewer multipliers)
// keeps its spec-mandated default.
func (b BrainConfig) ToBrainConfig() brain.Config {
	cfg := brain.DefaultConfig()
	if b.MinSpeakInterval > 0 {
		cfg.MinSpeakInterval = b.MinSpeakInterval
	}
	if b.MaxSpeakInterval > 0 {
		cfg.MaxSpeakInterval = b.MaxSpeakInterval
	}
	if b.DefaultCooldown > 0 {
		cfg.DefaultCooldown = b.DefaultCooldown
	}
	if b.HighPriorityThreshold > 0 {
		cfg.HighPriorityThreshold = b.HighPriorityThreshold
	}
	if b.AutoSpeakPriority > 0 {
		cfg.AutoSpeakPriority = b.AutoSpeakPriority
	}
	return cfg
}

// ExportIntervalOrDefault returns m.ExportInterval, falling back to 300s per
// spec.md §6's default METRICS_EXPORT_INTERVAL.
func (m MetricsConfig) ExportIntervalOrDefault() time.Duration {
	if m.ExportInterval > 0 {
		return m.ExportInterval
	}
	return 300 * time.Second
}

// ViewerUpdateIntervalOrDefault returns f.ViewerUpdateInterval, falling back
// to 10s.
func (f FlowConfig) ViewerUpdateIntervalOrDefault() time.Duration {
	if f.ViewerUpdateInterval > 0 {
		return f.ViewerUpdateInterval
	}
	return 10 * time.Second
}

// PrefetchOrDefault returns b.Prefetch, falling back to 1 (the
// single-consumer hot path).
func (b BusConfig) PrefetchOrDefault() int {
	if b.Prefetch > 0 {
		return b.Prefetch
	}
	return 1
}
