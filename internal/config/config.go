package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string
	Env  string

	// Logging
	LogLevel  string
	LogFormat string

	// Gemini AI
	GeminiAPIKey         string
	GeminiModel          string
	GeminiTimeout        time.Duration
	GeminiConcurrentReqs int

	// Sessions
	SessionTTL time.Duration
	SessionMax int

	// Audit log (optional)
	DatabaseURL  string
	AuditWorkers int

	// Exchange events (optional)
	RedisURL string

	// HTTP
	CORSAllowedOrigins []string
	StaticDir          string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	env := getEnvOrDefault("ENV", "development")
	defaultFormat := "json"
	if env == "development" {
		defaultFormat = "pretty"
	}

	cfg := &Config{
		Port:                 getEnvOrDefault("PORT", "3000"),
		Env:                  env,
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", defaultFormat),
		GeminiAPIKey:         mustGetEnv("GEMINI_API_KEY"),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiTimeout:        getEnvAsDurationOrDefault("GEMINI_TIMEOUT", 60*time.Second),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		SessionTTL:           getEnvAsDurationOrDefault("SESSION_TTL", 0),
		SessionMax:           getEnvAsIntOrDefault("SESSION_MAX", 0),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		AuditWorkers:         getEnvAsIntOrDefault("AUDIT_WORKERS", 2),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		CORSAllowedOrigins:   getEnvAsListOrDefault("CORS_ALLOWED_ORIGINS", []string{"*"}),
		StaticDir:            getEnvOrDefault("STATIC_DIR", ""),
	}

	if cfg.GeminiConcurrentReqs < 1 {
		cfg.GeminiConcurrentReqs = 1
	}
	if cfg.AuditWorkers < 1 {
		cfg.AuditWorkers = 1
	}
	// A session must outlive the Gemini call that is answering it.
	if cfg.SessionTTL > 0 && cfg.GeminiTimeout > 0 && cfg.SessionTTL <= cfg.GeminiTimeout {
		cfg.SessionTTL = 2 * cfg.GeminiTimeout
	}

	return cfg
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvAsDurationOrDefault accepts Go duration strings ("90s", "30m") and
// bare integers, which are read as seconds.
func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(val); err == nil {
		if n < 0 {
			return defaultVal
		}
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func getEnvAsListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
