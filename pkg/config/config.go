// SPDX-License-Identifier: Apache-2.0

// Package config loads service configuration from YAML files and the
// environment using koanf. Environment variables use the MEND_ prefix
// (MEND_LLM_MODEL -> llm.model) and override file values.
package config

import (
	"os"
	"strconv"

	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Loop      LoopConfig      `koanf:"loop"`
	Memory    MemoryConfig    `koanf:"memory"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type AppConfig struct {
	Name    string `koanf:"name"`
	Version string `koanf:"version"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // gemini, ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// LoopConfig controls the critic/refiner quality loop.
type LoopConfig struct {
	Threshold     float64 `koanf:"threshold"`
	MaxIterations int     `koanf:"max_iterations"`
}

type MemoryConfig struct {
	Backend          string `koanf:"backend"` // inmemory, file, sqlite, qdrant
	Path             string `koanf:"path"`    // file or sqlite location
	QdrantAddr       string `koanf:"qdrant_addr"`
	EmbedderProvider string `koanf:"embedder_provider"` // ollama
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
}

type TelemetryConfig struct {
	Exporter           string            `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint       string            `koanf:"otlp_endpoint"`
	OTLPInsecure       bool              `koanf:"otlp_insecure"`
	OTLPTimeoutSeconds int               `koanf:"otlp_timeout_seconds"`
	OTLPHeaders        map[string]string `koanf:"otlp_headers"`
	OTLPUser           string            `koanf:"otlp_user"`
	OTLPToken          string            `koanf:"otlp_token"`
}

func Load(path string) (*Config, error) {
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	return load(paths, nil)
}

func setDefaults(k *koanf.Koanf) {
	k.Set("app.name", "self-improving-agent")
	k.Set("app.version", "0.1.0")
	k.Set("server.host", "0.0.0.0")
	k.Set("server.port", 8000)
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", "gemini")
	k.Set("llm.model", "gemini-2.5-flash")
	k.Set("llm.base_url", "http://localhost:11434")
	k.Set("loop.threshold", 0.85)
	k.Set("loop.max_iterations", 5)
	k.Set("memory.backend", "inmemory")
	k.Set("memory.path", "experiences.db")
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.embedder_provider", "ollama")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")
	k.Set("telemetry.exporter", "stdout")
}

// applyLegacyEnv honors deployment variables without the MEND_ prefix.
func applyLegacyEnv(k *koanf.Koanf) {
	if raw := os.Getenv("PORT"); raw != "" {
		if port, err := strconv.Atoi(raw); err == nil && port > 0 {
			k.Set("server.port", port)
		}
	}
	if model := os.Getenv("ADK_MODEL"); model != "" {
		k.Set("llm.model", model)
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && k.String("llm.api_key") == "" {
		k.Set("llm.api_key", key)
	}
	if app := os.Getenv("DD_LLMOBS_ML_APP"); app != "" {
		k.Set("app.name", app)
	}
}
