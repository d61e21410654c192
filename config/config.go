// Package config provides application configuration management.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	ServerPort string

	// Runtime (Ollama-compatible) configuration
	OllamaBaseURL  string
	RequestTimeout time.Duration

	// Download coordination
	DownloadTimeout      time.Duration
	DownloadHistoryLimit int

	// Metadata cache TTLs
	ModelCacheTTL     time.Duration
	LanguageCacheTTL  time.Duration
	TaskModelCacheTTL time.Duration

	// Performance tracking
	PerfHistoryLimit int
	PerfWindow       time.Duration

	// Task profiles
	TaskProfilePath string

	// Redis / events configuration
	RedisAddr        string
	RedisUsername    string
	RedisPassword    string
	RedisDB          int
	RedisTLSEnabled  bool
	RedisTLSInsecure bool
	EventsChannel    string

	// API auth
	APIToken string
}

// Load loads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		RequestTimeout:       getEnvDuration("RUNTIME_REQUEST_TIMEOUT", 2*time.Minute),
		DownloadTimeout:      getEnvDuration("DOWNLOAD_TIMEOUT", 30*time.Minute),
		DownloadHistoryLimit: getEnvInt("DOWNLOAD_HISTORY_LIMIT", 50),
		ModelCacheTTL:        getEnvDuration("MODEL_CACHE_TTL", 5*time.Minute),
		LanguageCacheTTL:     getEnvDuration("LANGUAGE_CACHE_TTL", 30*time.Minute),
		TaskModelCacheTTL:    getEnvDuration("TASK_MODEL_CACHE_TTL", 5*time.Minute),
		PerfHistoryLimit:     getEnvInt("PERF_HISTORY_LIMIT", 100),
		PerfWindow:           getEnvDuration("PERF_WINDOW", 24*time.Hour),
		TaskProfilePath:      getEnv("TASK_PROFILE_PATH", "/app/config/task-profiles"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisUsername:        getEnv("REDIS_USERNAME", ""),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisTLSEnabled:      getEnvBool("REDIS_TLS_ENABLED", false),
		RedisTLSInsecure:     getEnvBool("REDIS_TLS_INSECURE_SKIP_VERIFY", false),
		EventsChannel:        getEnv("EVENTS_CHANNEL", "hx-model-manager-events"),
		APIToken:             os.Getenv("HXM_API_TOKEN"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("Invalid duration for %s: %s, using default %s", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		log.Printf("Invalid int for %s: %s, using default %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "1", "true", "yes", "y":
			return true
		case "0", "false", "no", "n":
			return false
		default:
			log.Printf("Invalid bool for %s: %s, using default %t", key, value, defaultValue)
		}
	}
	return defaultValue
}
