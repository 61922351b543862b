package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	if cfg.Places.MaxResults != 3 {
		t.Errorf("MaxResults = %d, want 3", cfg.Places.MaxResults)
	}
	if cfg.Prompts.Group == "" || cfg.Prompts.Individual == "" {
		t.Error("default prompts must not be empty")
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enkai.yaml")
	raw := `
server:
  addr: ":9090"
llm:
  model: gemini-2.5-pro
  turn_timeout: 45s
triggers:
  start: ["はじめる"]
`
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", cfg.LLM.Model)
	}
	d, err := cfg.TurnTimeout()
	if err != nil || d != 45*time.Second {
		t.Errorf("TurnTimeout = %v, %v", d, err)
	}
	// Unset sections keep defaults.
	if cfg.Places.Language != "ja" {
		t.Errorf("Language = %q, want ja", cfg.Places.Language)
	}
	if got := cfg.Triggers.Start; len(got) != 1 || got[0] != "はじめる" {
		t.Errorf("Start triggers = %v", got)
	}
	if len(cfg.Triggers.Decision) == 0 {
		t.Error("decision triggers should keep defaults")
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enkai.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gk")
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "lt")
	t.Setenv("LINE_CHANNEL_SECRET", "ls")
	t.Setenv("PLACES_API_KEY", "pk")
	t.Setenv("ENKAI_ADDR", ":7070")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "gk" || cfg.LINE.ChannelToken != "lt" ||
		cfg.LINE.ChannelSecret != "ls" || cfg.Places.APIKey != "pk" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Addr = %q, want :7070", cfg.Server.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil with all credentials set", err)
	}
}

func TestValidateMissingCredentials(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() should fail without credentials")
	}

	cfg.LLM.APIKey = "gk"
	cfg.LINE.ChannelToken = "lt"
	cfg.LINE.ChannelSecret = "ls"
	cfg.Places.APIKey = "pk"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	cfg.LLM.TurnTimeout = "soon"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should reject an unparseable turn_timeout")
	}
}
