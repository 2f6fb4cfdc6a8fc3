package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	DataDir       string
	JWTSecret     string
	TokenTTL      time.Duration
	CORSOrigin    string
	LogLevel      string
	// Autosave debounce used by the client binding
	AutosaveDebounce time.Duration
	// Redis carries cross-tab change notifications; empty keeps them in-process
	RedisURL string
	// Meilisearch - empty disables the index and search falls back to a scan
	MeiliURL       string
	MeiliMasterKey string
	// Snapshot history - empty disables commits
	HistoryDir string
	// Object storage for published exports
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// Assistant
	OpenAIKey   string
	OpenAIModel string
}

// Load reads the environment, after merging an optional .env file from the
// working directory. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Addr:             getenv("API_ADDR", ":5000"),
		DatabaseURL:      getenv("DATABASE_URL", ""),
		MigrationsDir:    getenv("DOCSHUB_MIGRATIONS_DIR", "./db/migrations"),
		DataDir:          getenv("DOCSHUB_DATA_DIR", "./data"),
		JWTSecret:        getenv("DOCSHUB_JWT_SECRET", "docshub-dev-secret"),
		TokenTTL:         time.Duration(getenvInt("DOCSHUB_TOKEN_TTL_HOURS", 168)) * time.Hour,
		CORSOrigin:       getenv("DOCSHUB_CORS_ORIGIN", "*"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		AutosaveDebounce: time.Duration(getenvInt("DOCSHUB_AUTOSAVE_MS", 2000)) * time.Millisecond,
		RedisURL:         getenv("REDIS_URL", ""),
		MeiliURL:         getenv("MEILI_URL", ""),
		MeiliMasterKey:   getenv("MEILI_MASTER_KEY", ""),
		HistoryDir:       getenv("DOCSHUB_HISTORY_DIR", ""),
		MinioEndpoint:    getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:   getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:   getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:      getenv("MINIO_BUCKET", "docshub-exports"),
		MinioUseSSL:      getenvBool("MINIO_USE_SSL", false),
		OpenAIKey:        getenv("OPENAI_API_KEY", ""),
		OpenAIModel:      getenv("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
