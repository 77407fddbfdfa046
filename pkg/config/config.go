package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External services
	MarketData MarketDataConfig
	Narrative  NarrativeConfig

	// Engine defaults (overridable per request)
	Engine EngineConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// MarketDataConfig holds the price-provider API configuration.
type MarketDataConfig struct {
	APIKey  string
	BaseURL string

	// Requests per minute allowed against the provider
	RateLimit int

	// Concurrent per-ticker fetches
	Workers int
}

// NarrativeConfig holds the AI narrative analyst configuration.
type NarrativeConfig struct {
	Enabled bool
	APIKey  string
	Model   string
}

// EngineConfig holds default calculation parameters.
type EngineConfig struct {
	BenchmarkTicker   string
	RiskFreeRate      float64
	InvestableCapital float64
	LookbackDays      int
	CacheTTL          time.Duration
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		MarketData: MarketDataConfig{
			APIKey:    getEnv("MARKETDATA_API_KEY", ""),
			BaseURL:   getEnv("MARKETDATA_BASE_URL", "https://api.polygon.io"),
			RateLimit: getEnvAsInt("MARKETDATA_RATE_LIMIT", 100),
			Workers:   getEnvAsInt("MARKETDATA_WORKERS", 5),
		},

		Narrative: NarrativeConfig{
			Enabled: getEnvAsBool("NARRATIVE_ENABLED", false),
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("NARRATIVE_MODEL", "gemini-2.0-flash"),
		},

		Engine: EngineConfig{
			BenchmarkTicker:   getEnv("ENGINE_BENCHMARK", "SPY"),
			RiskFreeRate:      getEnvAsFloat("ENGINE_RISK_FREE_RATE", 0.05),
			InvestableCapital: getEnvAsFloat("ENGINE_INVESTABLE_CAPITAL", 100000),
			LookbackDays:      getEnvAsInt("ENGINE_LOOKBACK_DAYS", 365),
			CacheTTL:          getEnvAsDuration("ENGINE_CACHE_TTL", "24h"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Narrative.Enabled && c.Narrative.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when NARRATIVE_ENABLED=true")
	}

	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("ENGINE_CACHE_TTL must be positive")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
