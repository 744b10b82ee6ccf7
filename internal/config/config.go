package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"sessiongate-service/internal/pkg/jwt"
)

type AppConfig struct {
	// Server
	HTTPAddr    string
	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	// CORS
	AllowedOrigins []string

	// JWT (verification only; the identity provider signs)
	JWT jwt.Config

	// Session status cache
	StatusActiveTTL time.Duration
	StatusEndedTTL  time.Duration
}

// Load loads environment variables into AppConfig.
func Load() AppConfig {
	return AppConfig{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8000"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "redis-sessiongate:6379"),
		RedisPass:   getEnv("REDIS_PASS", ""),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", []string{"*"}),

		JWT: jwt.Config{
			PubPath:  getEnv("JWT_PUBLIC_KEY_PATH", "/app/secrets/jwt_public.pem"),
			Issuer:   getEnv("JWT_ISSUER", "course-platform"),
			Audience: getEnv("JWT_AUDIENCE", "course-users"),
		},

		StatusActiveTTL: getEnvDuration("STATUS_ACTIVE_TTL", 20*time.Second),
		StatusEndedTTL:  getEnvDuration("STATUS_ENDED_TTL", 24*time.Hour),
	}
}

// --- Helper functions ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
