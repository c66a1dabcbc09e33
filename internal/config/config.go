package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DB_USERNAME string
	DB_PASSWORD string
	DB_HOST     string
	DB_PORT     string
	DB_NAME     string
	DISABLE_TLS string

	HTTP_ADDR       string
	ALLOWED_HEADERS string

	// Locally issued access tokens
	JWT_SECRET string
	JWT_TTL    time.Duration

	// Optional OIDC login
	OIDC_ISSUER        string
	OIDC_CLIENT_ID     string
	OIDC_CLIENT_SECRET string
	OIDC_CALLBACK_URL  string
	OIDC_REDIRECT_URL  string
	STATE_SECRET       string

	// Active workspace sessions. In-memory when REDIS_ADDR is empty.
	REDIS_ADDR     string
	REDIS_PASSWORD string
	REDIS_DB       int
	SESSION_TTL    time.Duration

	// Wait for an authenticated user id before listing the caller's workspaces
	USER_CONTEXT_MAX_RETRIES uint
	USER_CONTEXT_MAX_WAIT    time.Duration

	// Otel
	OTEL_EXPORTER_OTLP_ENDPOINT string
}

func ReadConfig() *Config {
	return &Config{
		DB_USERNAME: os.Getenv("DB_USERNAME"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_NAME:     os.Getenv("DB_NAME"),
		DISABLE_TLS: os.Getenv("DISABLE_TLS"),

		HTTP_ADDR:       GetEnvOrDefault("HTTP_ADDR", "0.0.0.0:6060"),
		ALLOWED_HEADERS: GetEnvOrDefault("ALLOWED_HEADERS", "Content-Type,Authorization"),

		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_TTL:    getDurationOrDefault("JWT_TTL", 24*time.Hour),

		OIDC_ISSUER:        os.Getenv("OIDC_ISSUER"),
		OIDC_CLIENT_ID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDC_CLIENT_SECRET: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDC_CALLBACK_URL:  os.Getenv("OIDC_CALLBACK_URL"),
		OIDC_REDIRECT_URL:  GetEnvOrDefault("OIDC_REDIRECT_URL", "http://localhost:3000"),
		STATE_SECRET:       os.Getenv("STATE_SECRET"),

		REDIS_ADDR:     os.Getenv("REDIS_ADDR"),
		REDIS_PASSWORD: os.Getenv("REDIS_PASSWORD"),
		REDIS_DB:       getIntOrDefault("REDIS_DB", 0),
		SESSION_TTL:    getDurationOrDefault("SESSION_TTL", 24*time.Hour),

		USER_CONTEXT_MAX_RETRIES: uint(getIntOrDefault("USER_CONTEXT_MAX_RETRIES", 5)),
		USER_CONTEXT_MAX_WAIT:    getDurationOrDefault("USER_CONTEXT_MAX_WAIT", 2*time.Second),

		OTEL_EXPORTER_OTLP_ENDPOINT: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// DSN returns the postgres connection string shared by the pool and the LISTEN connection.
func (c *Config) DSN() string {
	str := "postgresql://" + c.DB_USERNAME + ":" + c.DB_PASSWORD + "@" + c.DB_HOST + ":" + c.DB_PORT + "/" + c.DB_NAME
	if c.DISABLE_TLS == "true" {
		str = str + "?sslmode=disable"
	}
	return str
}

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return defaultValue
}
