package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	DocService DocServiceConfig
	Cache      CacheConfig
	Tracing    TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	ViewTokenSecret    string
	ViewTokenTTL       time.Duration
}

type DocServiceConfig struct {
	BaseURL        string
	AuthToken      string
	RequestTimeout time.Duration
	AskTimeout     time.Duration
}

type CacheConfig struct {
	ChunkTTL       time.Duration
	SessionIdleTTL time.Duration
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/docchat.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3001"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			ViewTokenSecret:    getEnv("VIEW_TOKEN_SECRET", "change-me"),
			ViewTokenTTL:       getEnvAsDuration("VIEW_TOKEN_TTL", 12*time.Hour),
		},
		DocService: DocServiceConfig{
			BaseURL:        getEnv("DOCSERVICE_BASE_URL", "http://localhost:8000/api"),
			AuthToken:      getEnv("DOCSERVICE_AUTH_TOKEN", ""),
			RequestTimeout: getEnvAsDuration("DOCSERVICE_REQUEST_TIMEOUT", 30*time.Second),
			AskTimeout:     getEnvAsDuration("DOCCHAT_ASK_TIMEOUT", 60*time.Second),
		},
		Cache: CacheConfig{
			ChunkTTL:       getEnvAsDuration("CACHE_CHUNK_TTL", 10*time.Minute),
			SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", time.Hour),
		},
		Tracing: TracingConfig{
			Enabled:  getEnvAsBool("OTEL_ENABLED", false),
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
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

// getEnvAsDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs := getEnvAsInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
