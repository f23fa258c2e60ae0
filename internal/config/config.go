package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Keys     APIKeys
	Ai       AIConfig
	Memory   MemoryConfig
	Ads      AdsConfig
	Worker   WorkerConfig
	Stream   StreamConfig
	Session  SessionConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	LLMLogFilePath     string
	CorsAllowedOrigins string
	NatsURL            string // empty disables NATS
	RedisURL           string // empty keeps snapshots in process memory
	OtelEnabled        bool
}

type DatabaseConfig struct {
	Connection string // empty keeps the interest log in process memory
}

type APIKeys struct {
	LLM           string
	InterestTopic string
}

type AIConfig struct {
	LLMProvider       string // "openai" (any OpenAI-compatible endpoint) or "ollama"
	LLMBaseURL        string
	LLMModel          string
	EmbeddingProvider string
	EmbeddingModel    string
}

type MemoryConfig struct {
	DataStoragePath     string
	FileStorageBasePath string
	ShortTermCapacity   int
}

type AdsConfig struct {
	DataDir string
}

type WorkerConfig struct {
	PoolSize  int
	QueueSize int
}

type StreamConfig struct {
	EnrichmentDeadline time.Duration
	EnrichmentTimeout  time.Duration
	RelayPollInterval  time.Duration
	DefaultConverter   string
}

type SessionConfig struct {
	TTL time.Duration
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "5019"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			LLMLogFilePath:     getEnv("LLM_LOG_FILE_PATH", "logs/enrichment.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Keys: APIKeys{
			LLM:           strings.TrimSpace(getEnv("LLM_API_KEY", "")),
			InterestTopic: getEnv("INTEREST_TOPIC_NAME", "INTEREST_OBSERVED"),
		},
		Ai: AIConfig{
			LLMProvider:       getEnv("LLM_PROVIDER", "openai"),
			LLMBaseURL:        strings.TrimSpace(getEnv("LLM_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")),
			LLMModel:          strings.TrimSpace(getEnv("LLM_MODEL", "doubao-seed-1-6-flash-250828")),
			EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "doubao"),
			EmbeddingModel:    strings.TrimSpace(getEnv("EMBEDDING_MODEL", "doubao-embedding-large-text-250515")),
		},
		Memory: MemoryConfig{
			DataStoragePath:     getEnv("DATA_STORAGE_PATH", "./data"),
			FileStorageBasePath: getEnv("FILE_STORAGE_BASE_PATH", "."),
			ShortTermCapacity:   getEnvAsInt("SHORT_TERM_CAPACITY", 7),
		},
		Ads: AdsConfig{
			DataDir: getEnv("AD_DATA_DIR", "./ad_data"),
		},
		Worker: WorkerConfig{
			PoolSize:  getEnvAsInt("WORKER_POOL_SIZE", 10),
			QueueSize: getEnvAsInt("WORKER_QUEUE_SIZE", 256),
		},
		Stream: StreamConfig{
			EnrichmentDeadline: getEnvAsDuration("ENRICHMENT_DEADLINE", 20*time.Second),
			EnrichmentTimeout:  getEnvAsDuration("ENRICHMENT_LLM_TIMEOUT", 10*time.Second),
			RelayPollInterval:  getEnvAsDuration("RELAY_POLL_INTERVAL", 500*time.Millisecond),
			DefaultConverter:   getEnv("INGEST_DEFAULT_CONVERTER", "text"),
		},
		Session: SessionConfig{
			TTL: getEnvAsDuration("SESSION_TTL", 24*time.Hour),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("20s") or plain seconds ("20").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := strings.TrimSpace(getEnv(key, ""))
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.ParseFloat(strValue, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	log.Printf("[WARN] Invalid duration for %s: %q, using %s", key, strValue, fallback)
	return fallback
}
