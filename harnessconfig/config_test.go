package harnessconfig

import (
	"testing"
	"time"

	"chainharness/runner"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Runner.DrainWindow != runner.DefaultDrainWindow {
		t.Fatalf("expected default drain window %s, got %s", runner.DefaultDrainWindow, cfg.Runner.DrainWindow)
	}
	if cfg.Runner.ReadinessTimeout != runner.DefaultReadinessTimeout {
		t.Fatalf("expected default readiness timeout %s, got %s", runner.DefaultReadinessTimeout, cfg.Runner.ReadinessTimeout)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default log level info, got %q", cfg.Logging.Level)
	}
}

func TestEffectiveReadinessTimeoutDoublesInSlowMode(t *testing.T) {
	cfg := Config{}
	cfg.Runner.ReadinessTimeout = 60 * time.Second
	cfg.Runner.SlowEnvironment = true

	got := cfg.EffectiveReadinessTimeout()
	want := 120 * time.Second
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestEffectiveReadinessTimeoutUnchangedWhenNotSlow(t *testing.T) {
	cfg := Config{}
	cfg.Runner.ReadinessTimeout = 60 * time.Second

	if got := cfg.EffectiveReadinessTimeout(); got != 60*time.Second {
		t.Fatalf("expected unchanged 60s, got %s", got)
	}
}
