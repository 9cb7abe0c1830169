package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	// OnlineThreshold is the maximum heartbeat age of an online screen.
	OnlineThreshold     time.Duration
	UptimeWindowMinutes int

	// DatabaseURL selects the PostgreSQL store; empty means in-memory.
	DatabaseURL string
	DBMaxConns  int
	DBMaxIdle   int

	// RedisAddr enables the status hint cache when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	StatusHintTTL time.Duration
}

// Load reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, Load returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files (e.g. ".env"); with no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// FromEnv builds a Config from the environment, applying defaults.
func FromEnv() Config {
	return Config{
		Port:                GetEnv("PORT", "8080"),
		LogLevel:            GetEnv("LOG_LEVEL", "info"),
		LogFormat:           GetEnv("LOG_FORMAT", "json"),
		OnlineThreshold:     time.Duration(GetEnvInt("ONLINE_THRESHOLD_SECONDS", 120)) * time.Second,
		UptimeWindowMinutes: GetEnvInt("UPTIME_WINDOW_MINUTES", 60),
		DatabaseURL:         GetEnv("DATABASE_URL", ""),
		DBMaxConns:          GetEnvInt("DB_MAX_CONNS", 10),
		DBMaxIdle:           GetEnvInt("DB_MAX_IDLE", 5),
		RedisAddr:           GetEnv("REDIS_ADDR", ""),
		RedisPassword:       GetEnv("REDIS_PASSWORD", ""),
		RedisDB:             GetEnvInt("REDIS_DB", 0),
		StatusHintTTL:       GetEnvDuration("STATUS_HINT_TTL", 24*time.Hour),
	}
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of the environment variable named by key,
// or fallback if the variable is unset, empty, or not a valid integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvDuration parses the variable with time.ParseDuration ("90s", "24h"),
// or returns fallback if it is unset or malformed.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	if s := os.Getenv(key); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			return d
		}
	}
	return fallback
}
