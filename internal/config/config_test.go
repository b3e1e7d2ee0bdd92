package config

import "testing"

func TestBrainConfig_ToBrainConfig_OverridesOnlyConfiguredFields(t *testing.T) {
	b := BrainConfig{MinSpeakInterval: 5, AutoSpeakPriority: 8}
	cfg := b.ToBrainConfig()

	if cfg.MinSpeakInterval != 5 {
		t.Errorf("min speak interval = %v, want 5", cfg.MinSpeakInterval)
	}
	if cfg.AutoSpeakPriority != 8 {
		t.Errorf("auto speak priority = %v, want 8", cfg.AutoSpeakPriority)
	}
	// Untouched fields keep brain.DefaultConfig's values.
	if cfg.HighPriorityThreshold != 7 {
		t.Errorf("high priority threshold = %v, want default 7", cfg.HighPriorityThreshold)
	}
	if cfg.DuplicateSimilarity != 0.8 {
		t.Errorf("duplicate similarity = %v, want default 0.8", cfg.DuplicateSimilarity)
	}
}

func TestMetricsConfig_ExportIntervalOrDefault(t *testing.T) {
	var m MetricsConfig
	if got := m.ExportIntervalOrDefault(); got.Seconds() != 300 {
		t.Errorf("default export interval = %v, want 300s", got)
	}
}

func TestBusConfig_PrefetchOrDefault(t *testing.T) {
	var b BusConfig
	if got := b.PrefetchOrDefault(); got != 1 {
		t.Errorf("default prefetch = %d, want 1", got)
	}
	b.Prefetch = 5
	if got := b.PrefetchOrDefault(); got != 5 {
		t.Errorf("configured prefetch = %d, want 5", got)
	}
}
