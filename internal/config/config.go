package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the relay reads from the environment.
type Config struct {
	Port       string
	CORSOrigin string
	GinMode    string

	Ollama    OllamaConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type OllamaConfig struct {
	Host         string
	DefaultModel string
	Timeout      time.Duration
	Mock         bool
}

type RateLimitConfig struct {
	Interval time.Duration
	Capacity int
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

const (
	DefaultPort       = "8080"
	DefaultOllamaHost = "http://localhost:11434"
	DefaultModel      = "qwen2.5:3b"
	DefaultTimeout    = 120 * time.Second
	DefaultInterval   = 60 * time.Second
	DefaultCapacity   = 500
	DefaultCORSOrigin = "http://localhost:3000"
)

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() *Config {
	return &Config{
		Port:       getEnv("PORT", DefaultPort),
		CORSOrigin: getEnv("CORS_ORIGIN", DefaultCORSOrigin),
		GinMode:    getEnv("GIN_MODE", ""),

		Ollama: OllamaConfig{
			Host:         strings.TrimRight(getEnv("OLLAMA_HOST", DefaultOllamaHost), "/"),
			DefaultModel: getEnv("DEFAULT_MODEL", DefaultModel),
			Timeout:      getEnvDuration("OLLAMA_TIMEOUT", DefaultTimeout),
			Mock:         getEnvBool("MOCK_BACKEND", false),
		},

		RateLimit: RateLimitConfig{
			Interval: getEnvDuration("RATE_LIMIT_INTERVAL", DefaultInterval),
			Capacity: getEnvInt("RATE_LIMIT_CAPACITY", DefaultCapacity),
		},

		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   getEnv("LOG_FILE", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration ("90s") or a bare number of milliseconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms <= 0 {
			return defaultValue
		}
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
