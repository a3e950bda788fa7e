package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures process-level configuration. FromEnv keeps main lean; every
// value has a development default except the admin token, which fails closed
// (admin endpoints reject everything when unset).
type Config struct {
	Addr       string
	AdminToken string

	// Generation provider.
	GeminiAPIKey string
	GeminiModel  string

	// Storage: DatabaseURL selects the relational backend; when empty the
	// versioned file store under DataDir is used instead.
	DatabaseURL string
	DataDir     string

	// Optional advisory-lock backend for serializing scheduled jobs.
	Redis RedisConfig

	// Generation pipeline tuning.
	BatchSize  int
	BatchDelay time.Duration

	// IANA timezone for round/draw-date arithmetic.
	Timezone string
}

// RedisConfig carries connection settings for the advisory-lock client.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:         getenv("NOTTO_ADDR", ":8080"),
		AdminToken:   os.Getenv("NOTTO_ADMIN_TOKEN"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DataDir:      getenv("NOTTO_DATA_DIR", "data"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		BatchSize:  getenvInt("NOTTO_BATCH_SIZE", 15),
		BatchDelay: getenvDuration("NOTTO_BATCH_DELAY", 3*time.Second),
		Timezone:   getenv("NOTTO_TIMEZONE", "Asia/Seoul"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			return d
		}
	}
	return fallback
}
