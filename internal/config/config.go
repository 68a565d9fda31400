package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL        string `env:"API_BASE_URL"`
	WSURL             string `env:"WS_URL"`
	LogLevel          string `env:"LOG_LEVEL"`
	MetricsAddr       string `env:"METRICS_ADDR"`
	RedisURL          string `env:"REDIS_URL,secret"`
	DatabaseURL       string `env:"DATABASE_URL,secret"`
	SessionUserID     string `env:"SESSION_USER_ID"`
	TokenTTL          time.Duration
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration
	MaxReconnects     int
}

// Load loads configuration from the environment, reading a local .env
// file first when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "https://api.vicinity.chat/v1"),
		WSURL:             getEnv("WS_URL", "wss://ws.vicinity.chat/v1"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		RedisURL:          getEnv("REDIS_URL", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		SessionUserID:     getEnv("SESSION_USER_ID", ""),
		TokenTTL:          getDuration("TOKEN_TTL", 0),
		ReconnectDelay:    getDuration("RECONNECT_DELAY", 3*time.Second),
		HeartbeatInterval: getDuration("HEARTBEAT_INTERVAL", 30*time.Second),
		HandshakeTimeout:  getDuration("HANDSHAKE_TIMEOUT", 15*time.Second),
		MaxReconnects:     getInt("MAX_RECONNECT_ATTEMPTS", 10),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
