package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	def := Default()
	if cfg.ConfidenceThreshold != def.ConfidenceThreshold {
		t.Errorf("ConfidenceThreshold = %v, want %v", cfg.ConfidenceThreshold, def.ConfidenceThreshold)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v, want 30m", cfg.SessionTimeout)
	}
	if cfg.ExecutionTimeout != 30*time.Second {
		t.Errorf("ExecutionTimeout = %v, want 30s", cfg.ExecutionTimeout)
	}
	if !cfg.EnableFallback || !cfg.SaveHistory {
		t.Errorf("EnableFallback = %v, SaveHistory = %v, want both true", cfg.EnableFallback, cfg.SaveHistory)
	}
	if cfg.Gateway != "exec" {
		t.Errorf("Gateway = %q, want exec", cfg.Gateway)
	}
}

func TestLoad_PartialFileOverridesPerKey(t *testing.T) {
	path := writeConfig(t, `{
		"confidence_threshold": 0.8,
		"max_suggestions": 5,
		"session_timeout_minutes": 10,
		"save_history": false
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold = %v, want 0.8", cfg.ConfidenceThreshold)
	}
	if cfg.MaxSuggestions != 5 {
		t.Errorf("MaxSuggestions = %d, want 5", cfg.MaxSuggestions)
	}
	if cfg.SessionTimeout != 10*time.Minute {
		t.Errorf("SessionTimeout = %v, want 10m", cfg.SessionTimeout)
	}
	if cfg.SaveHistory {
		t.Error("SaveHistory = true, want false")
	}

	// Untouched keys keep their defaults.
	if cfg.MaxContextTurns != 10 {
		t.Errorf("MaxContextTurns = %d, want default 10", cfg.MaxContextTurns)
	}
	if cfg.ExecutionTimeout != 30*time.Second {
		t.Errorf("ExecutionTimeout = %v, want default 30s", cfg.ExecutionTimeout)
	}
}

func TestLoad_UnrecognizedKeysIgnored(t *testing.T) {
	path := writeConfig(t, `{
		"max_suggestions": 2,
		"frobnication_level": 11,
		"nested": {"whatever": true}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxSuggestions != 2 {
		t.Errorf("MaxSuggestions = %d, want 2", cfg.MaxSuggestions)
	}
}

func TestLoad_InvalidValuesFallBackPerKey(t *testing.T) {
	path := writeConfig(t, `{
		"confidence_threshold": 3.5,
		"max_suggestions": 0,
		"session_timeout_minutes": -1,
		"execution_timeout": 0,
		"gateway": "carrier-pigeon",
		"max_context_turns": 7
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	def := Default()
	if cfg.ConfidenceThreshold != def.ConfidenceThreshold {
		t.Errorf("ConfidenceThreshold = %v, want default after invalid value", cfg.ConfidenceThreshold)
	}
	if cfg.MaxSuggestions != def.MaxSuggestions {
		t.Errorf("MaxSuggestions = %d, want default", cfg.MaxSuggestions)
	}
	if cfg.SessionTimeout != def.SessionTimeout {
		t.Errorf("SessionTimeout = %v, want default", cfg.SessionTimeout)
	}
	if cfg.ExecutionTimeout != def.ExecutionTimeout {
		t.Errorf("ExecutionTimeout = %v, want default", cfg.ExecutionTimeout)
	}
	if cfg.Gateway != "exec" {
		t.Errorf("Gateway = %q, want default exec", cfg.Gateway)
	}

	// A valid key in the same file still applies.
	if cfg.MaxContextTurns != 7 {
		t.Errorf("MaxContextTurns = %d, want 7", cfg.MaxContextTurns)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"embedding_api_key": "from-file", "log_level": "debug"}`)
	t.Setenv("AIDA_EMBEDDING_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.EmbeddingAPIKey != "from-env" {
		t.Errorf("EmbeddingAPIKey = %q, want env value", cfg.EmbeddingAPIKey)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want file value when env unset", cfg.LogLevel)
	}
}

func TestLoad_MalformedFileIsAnError(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load(malformed) expected error")
	}
}
