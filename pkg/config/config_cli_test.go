package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadWithCLIOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
llm:
  provider: "ollama"
  model: "model-a"
telemetry:
  exporter: "stdout"
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MEND_LLM_PROVIDER", "gemini")

	cfg, err := LoadWithCLI([]string{
		"--config", path,
		"--set", "llm.provider=mock",
		"--set", "loop.max_iterations=3",
		"--set", "loop.threshold=0.7",
		"--set", "telemetry.otlp_insecure=true",
		"--set", "telemetry.otlp_timeout_seconds=12",
	})
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}
	if cfg.LLM.Provider != "mock" {
		t.Fatalf("expected cli override provider, got %s", cfg.LLM.Provider)
	}
	if cfg.Loop.MaxIterations != 3 {
		t.Fatalf("expected max iterations override, got %d", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.Threshold != 0.7 {
		t.Fatalf("expected threshold override, got %f", cfg.Loop.Threshold)
	}
	if !cfg.Telemetry.OTLPInsecure {
		t.Fatalf("expected otlp_insecure=true")
	}
	if cfg.Telemetry.OTLPTimeoutSeconds != 12 {
		t.Fatalf("expected telemetry timeout override")
	}
}

func TestParseCLIOverridesErrors(t *testing.T) {
	if _, err := parseCLIOverrides([]string{"--config"}); err == nil {
		t.Fatalf("expected error for missing --config value")
	}
	if _, err := parseCLIOverrides([]string{"--set"}); err == nil {
		t.Fatalf("expected error for missing --set value")
	}
	if _, err := parseCLIOverrides([]string{"--set", "invalid"}); err == nil {
		t.Fatalf("expected error for invalid --set value")
	}
}

func TestParseCLIOverridesIgnoresUnknownFlags(t *testing.T) {
	parsed, err := parseCLIOverrides([]string{"serve", "--json", "--config", "a.yaml"})
	if err != nil {
		t.Fatalf("parseCLIOverrides failed: %v", err)
	}
	if parsed.ConfigPath != "a.yaml" {
		t.Fatalf("expected config path a.yaml, got %s", parsed.ConfigPath)
	}
}
