// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetMessageRatePerMinute() int
}

// JWTConfig provides bearer token validation settings. An empty secret
// disables authentication on operator routes.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// AIConfig provides settings for the Gemini oracle.
type AIConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
	GetExtractionModel() string
	GetReplyTemperature() float32
	IsAIEnabled() bool
}

// EngineConfig provides conversation engine defaults.
type EngineConfig interface {
	GetFallbackReply() string
	GetBotName() string
	GetDefaultCurrency() string
	GetStagnantAfter() time.Duration
}

// SyncConfig provides synchronization layer settings.
type SyncConfig interface {
	GetMergePolicy() string
	GetDeleteTombstoneTTL() time.Duration
	GetPersistTimeout() time.Duration
}

// SchedulerConfig provides Redis/asynq settings for the persistence retry queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// CacheConfig provides catalog cache settings.
type CacheConfig interface {
	GetRedisURL() string
	GetCatalogCacheTTL() time.Duration
	GetCatalogFile() string
}

// StreamConfig provides settings for the optional Kafka event sink.
type StreamConfig interface {
	GetKafkaBrokers() []string
	GetKafkaDealsTopic() string
	IsKafkaEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	MigrationsDir        string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	MessageRatePerMinute int
	GeminiAPIKey         string
	GeminiModel          string
	ExtractionModel      string
	ReplyTemperature     float32
	FallbackReply        string
	BotName              string
	DefaultCurrency      string
	StagnantAfter        time.Duration
	MergePolicy          string
	DeleteTombstoneTTL   time.Duration
	PersistTimeout       time.Duration
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	CatalogCacheTTL      time.Duration
	CatalogFile          string
	KafkaBrokers         []string
	KafkaDealsTopic      string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool        { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string     { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool      { return c.CORSAllowCreds }
func (c *Config) GetMessageRatePerMinute() int { return c.MessageRatePerMinute }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// AIConfig implementation
func (c *Config) GetGeminiAPIKey() string      { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string       { return c.GeminiModel }
func (c *Config) GetExtractionModel() string   { return c.ExtractionModel }
func (c *Config) GetReplyTemperature() float32 { return c.ReplyTemperature }
func (c *Config) IsAIEnabled() bool            { return c.GeminiAPIKey != "" }

// EngineConfig implementation
func (c *Config) GetFallbackReply() string         { return c.FallbackReply }
func (c *Config) GetBotName() string               { return c.BotName }
func (c *Config) GetDefaultCurrency() string       { return c.DefaultCurrency }
func (c *Config) GetStagnantAfter() time.Duration { return c.StagnantAfter }

// SyncConfig implementation
func (c *Config) GetMergePolicy() string                { return c.MergePolicy }
func (c *Config) GetDeleteTombstoneTTL() time.Duration { return c.DeleteTombstoneTTL }
func (c *Config) GetPersistTimeout() time.Duration     { return c.PersistTimeout }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

// CacheConfig implementation
func (c *Config) GetCatalogCacheTTL() time.Duration { return c.CatalogCacheTTL }
func (c *Config) GetCatalogFile() string            { return c.CatalogFile }

// StreamConfig implementation
func (c *Config) GetKafkaBrokers() []string { return c.KafkaBrokers }
func (c *Config) GetKafkaDealsTopic() string { return c.KafkaDealsTopic }
func (c *Config) IsKafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaDealsTopic != ""
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if len(corsOrigins) == 0 || containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		MigrationsDir:        getEnv("MIGRATIONS_DIR", "migrations"),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "false"), "true"),
		MessageRatePerMinute: mustInt(getEnv("MESSAGE_RATE_PER_MINUTE", "30")),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		ExtractionModel:      getEnv("EXTRACTION_MODEL", ""),
		ReplyTemperature:     mustFloat32(getEnv("REPLY_TEMPERATURE", "0.2")),
		FallbackReply:        getEnv("FALLBACK_REPLY", "Tengo problemas conectando con el cerebro. Por favor intenta de nuevo en unos momentos."),
		BotName:              getEnv("BOT_NAME", "VentasBot 3000"),
		DefaultCurrency:      strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
		StagnantAfter:        mustDuration(getEnv("STAGNANT_AFTER", "24h")),
		MergePolicy:          strings.ToLower(getEnv("DEAL_MERGE_POLICY", "last_event_wins")),
		DeleteTombstoneTTL:   mustDuration(getEnv("DELETE_TOMBSTONE_TTL", "10m")),
		PersistTimeout:       mustDuration(getEnv("PERSIST_TIMEOUT", "10s")),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		CatalogCacheTTL:      mustDuration(getEnv("CATALOG_CACHE_TTL", "30s")),
		CatalogFile:          getEnv("CATALOG_FILE", ""),
		KafkaBrokers:         splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaDealsTopic:      getEnv("KAFKA_DEALS_TOPIC", "deals.events"),
	}

	if cfg.ExtractionModel == "" {
		cfg.ExtractionModel = cfg.GeminiModel
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	switch cfg.MergePolicy {
	case "last_event_wins", "revision":
	default:
		return nil, fmt.Errorf("DEAL_MERGE_POLICY must be last_event_wins or revision, got %q", cfg.MergePolicy)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat32(value string) float32 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return 0
	}
	return float32(result)
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
