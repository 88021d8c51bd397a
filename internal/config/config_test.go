package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "OLLAMA_MODEL", "EMBED_MODEL", "EMBED_DIMENSION", "CHUNK_SIZE", "CHUNK_OVERLAP", "OLLAMA_TIMEOUT"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.GenerateModel != "mistral" {
		t.Errorf("expected default generate model mistral, got %s", cfg.GenerateModel)
	}
	if cfg.EmbedModel != "all-minilm" {
		t.Errorf("expected default embed model all-minilm, got %s", cfg.EmbedModel)
	}
	if cfg.EmbedDimension != 384 {
		t.Errorf("expected default dimension 384, got %d", cfg.EmbedDimension)
	}
	if cfg.ChunkSize != 500 || cfg.ChunkOverlap != 100 {
		t.Errorf("expected default chunking 500/100, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.GenerateTimeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.GenerateTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("EMBED_DIMENSION", "768")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("OLLAMA_TIMEOUT", "5s")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.EmbedDimension != 768 {
		t.Errorf("expected dimension 768, got %d", cfg.EmbedDimension)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected 2 workers, got %d", cfg.WorkerCount)
	}
	if cfg.GenerateTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %s", cfg.GenerateTimeout)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "-3")
	t.Setenv("EMBED_DIMENSION", "not-a-number")
	t.Setenv("MAX_QUEUE_SIZE", "0")

	cfg := Load()
	if cfg.WorkerCount != 4 {
		t.Errorf("expected worker count fallback 4, got %d", cfg.WorkerCount)
	}
	if cfg.EmbedDimension != 384 {
		t.Errorf("expected dimension fallback 384, got %d", cfg.EmbedDimension)
	}
	if cfg.MaxQueueSize != 100 {
		t.Errorf("expected queue size fallback 100, got %d", cfg.MaxQueueSize)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}

	bad := cfg
	bad.DatabaseURL = ""
	if err := bad.Validate(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}

	bad = cfg
	bad.ChunkSize = 100
	bad.ChunkOverlap = 100
	if err := bad.Validate(); err == nil {
		t.Error("expected error for overlap >= size")
	}
}
