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

	// External data providers
	Finviz FinvizConfig
	Yahoo  YahooConfig

	// Prediction pipeline policy
	Prediction PredictionConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// FinvizConfig holds Finviz scraping configuration
type FinvizConfig struct {
	BaseURL string
}

// YahooConfig holds Yahoo Finance API configuration
type YahooConfig struct {
	BaseURL       string
	RatePerSecond float64
}

// PredictionConfig holds the scoring and scheduling policy for the
// prediction pipeline.
type PredictionConfig struct {
	// SuccessThreshold is the max absolute prediction error counted as a hit.
	SuccessThreshold float64

	// MinPredictions is the resolved-sample floor below which a firm gets
	// no metrics.
	MinPredictions int

	// HorizonDays is how far out a price target is evaluated.
	HorizonDays int

	// Cron expressions (with seconds) for the scheduled jobs.
	SnapshotSchedule string
	PipelineSchedule string
	RefreshSchedule  string

	// MarketTimezone gates the intraday price refresh job.
	MarketTimezone string
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "stockpilot"),
			User:            getEnv("DB_USER", "stockpilot"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		// External providers
		Finviz: FinvizConfig{
			BaseURL: getEnv("FINVIZ_BASE_URL", "https://finviz.com"),
		},

		Yahoo: YahooConfig{
			BaseURL:       getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
			RatePerSecond: getEnvAsFloat("YAHOO_RATE_PER_SECOND", 4.0),
		},

		// Prediction policy
		Prediction: PredictionConfig{
			SuccessThreshold: getEnvAsFloat("PREDICTION_SUCCESS_THRESHOLD", 0.10),
			MinPredictions:   getEnvAsInt("PREDICTION_MIN_SAMPLE", 5),
			HorizonDays:      getEnvAsInt("PREDICTION_HORIZON_DAYS", 365),
			SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "0 0 18 * * *"),
			PipelineSchedule: getEnv("PIPELINE_SCHEDULE", "0 0 2 * * *"),
			RefreshSchedule:  getEnv("REFRESH_SCHEDULE", "0 */15 * * * *"),
			MarketTimezone:   getEnv("MARKET_TIMEZONE", "America/New_York"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Database URL is required
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Prediction.SuccessThreshold <= 0 || c.Prediction.SuccessThreshold >= 1 {
		return fmt.Errorf("PREDICTION_SUCCESS_THRESHOLD must be in (0, 1)")
	}

	if c.Prediction.MinPredictions < 1 {
		return fmt.Errorf("PREDICTION_MIN_SAMPLE must be at least 1")
	}

	if c.Prediction.HorizonDays < 1 {
		return fmt.Errorf("PREDICTION_HORIZON_DAYS must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
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
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
