package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Storage backend: memory, badger, postgres, redis.
	StoreBackend string
	BadgerPath   string
	RedisAddr    string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Listing source. When PortalBaseURL is empty the app runs against
	// the built-in fixture source (offline demo mode).
	PortalBaseURL string
	CityScope     string
	SubAreas      []string
	ChromeBin     string

	// External enrichment providers. Empty keys degrade gracefully.
	RoutingBaseURL string
	RoutingAPIKey  string
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	CommuteAnchor  string

	// Pipeline tuning.
	RawPoolSize    int
	InitialBatch   int
	RateLimitMs    int
	MaxRetries     int
	TopUpTarget    int
	PoolMultiplier int
	SeedMultiplier int

	HTTPAddr string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		StoreBackend: getEnv("STORE_BACKEND", "badger"),
		BadgerPath:   getEnv("BADGER_PATH", "./data/homematch"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "homematch"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "homematch123"),
		PostgresDB:       getEnv("POSTGRES_DB", "homematch_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PortalBaseURL: getEnv("PORTAL_BASE_URL", ""),
		CityScope:     getEnv("CITY_SCOPE", "new-york"),
		SubAreas:      getEnvList("SUB_AREAS", "manhattan,brooklyn,queens"),
		ChromeBin:     getEnv("CHROME_BIN", ""),

		RoutingBaseURL: getEnv("ROUTING_BASE_URL", ""),
		RoutingAPIKey:  getEnv("ROUTING_API_KEY", ""),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		CommuteAnchor:  getEnv("COMMUTE_ANCHOR", "Midtown Manhattan"),

		RawPoolSize:    getEnvInt("RAW_POOL_SIZE", 30),
		InitialBatch:   getEnvInt("INITIAL_BATCH", 5),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 400),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		TopUpTarget:    getEnvInt("TOPUP_TARGET", 6),
		PoolMultiplier: getEnvInt("POOL_MULTIPLIER", 6),
		SeedMultiplier: getEnvInt("SEED_MULTIPLIER", 4),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
