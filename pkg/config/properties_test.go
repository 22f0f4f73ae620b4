package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/util"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := config.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsBadDecay(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DecayFactor = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("decay factor above 1 must be rejected")
	}
	cfg.DecayFactor = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero decay factor must be rejected")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	body := []byte("engine_port: 7777\nlog_level: debug\ntopk_max: 25\ndecay_factor: 0.9\n")
	if err := os.WriteFile(path, body, 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := config.DefaultConfig()
	if err := config.LoadFromFile(path, cfg); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.EnginePort != 7777 {
		t.Fatalf("engine_port not applied: got %d", cfg.EnginePort)
	}
	if cfg.LogLevel != util.LogLevelDebug {
		t.Fatalf("log_level not applied: got %v", cfg.LogLevel)
	}
	if cfg.TopKMax != 25 {
		t.Fatalf("topk_max not applied: got %d", cfg.TopKMax)
	}
	if cfg.DefaultPartitions != config.DefaultConfig().DefaultPartitions {
		t.Fatal("fields absent from the file must keep their defaults")
	}
}
