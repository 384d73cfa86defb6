package config

import (
	"testing"
	"time"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when DATABASE_URL is empty")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/salesflow")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("EXTRACTION_MODEL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.GetMergePolicy() != "last_event_wins" {
		t.Fatalf("expected default merge policy, got %q", cfg.GetMergePolicy())
	}
	if cfg.GetExtractionModel() != "gemini-test" {
		t.Fatalf("expected extraction model to fall back to reply model, got %q", cfg.GetExtractionModel())
	}
	if cfg.GetReplyTemperature() < 0.19 || cfg.GetReplyTemperature() > 0.21 {
		t.Fatalf("expected reply temperature 0.2, got %v", cfg.GetReplyTemperature())
	}
	if cfg.GetDeleteTombstoneTTL() != 10*time.Minute {
		t.Fatalf("expected 10m tombstone ttl, got %v", cfg.GetDeleteTombstoneTTL())
	}
	if cfg.IsAIEnabled() {
		t.Fatalf("AI must be disabled without GEMINI_API_KEY")
	}
}

func TestLoadRejectsUnknownMergePolicy(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/salesflow")
	t.Setenv("DEAL_MERGE_POLICY", "vector-clock")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown merge policy")
	}
}

func TestLoadWildcardOriginForcesAllowAll(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/salesflow")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, *")
	t.Setenv("CORS_ALLOW_CREDENTIALS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.GetCORSAllowAll() {
		t.Fatalf("expected wildcard origin to enable CORS allow-all")
	}
	if len(cfg.GetCORSOrigins()) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.GetCORSOrigins())
	}
}

func TestKafkaEnabledNeedsBrokers(t *testing.T) {
	cfg := &Config{KafkaDealsTopic: "deals.events"}
	if cfg.IsKafkaEnabled() {
		t.Fatalf("kafka must be disabled without brokers")
	}
	cfg.KafkaBrokers = []string{"localhost:9092"}
	if !cfg.IsKafkaEnabled() {
		t.Fatalf("kafka must be enabled with brokers and topic")
	}
}
