// Package config loads the session engine's ambient, environment-derived
// settings (database, Redis, the SystemManager's HTTP surface). The
// per-session trading configuration (symbols, intervals, strategies) is a
// separate JSON document decoded by models.DecodeSessionConfig, not by
// this package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting for the session engine
// process.
type Config struct {
	Environment string
	LogLevel    string

	Database DatabaseConfig
	Redis    RedisConfig
	System   SystemConfig
}

// DatabaseConfig holds the BarRepository's Postgres/Timescale connection
// settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the connection settings shared by DataQualityManager's
// pending-gap bookkeeping and the provisioning protocol's pending-symbol
// set.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// SystemConfig holds the SystemManager HTTP surface's settings: the
// control/status port, the health-check port, and the JWT secret gating
// the control endpoints (start/stop/pause/resume/add-symbol/remove-symbol).
type SystemConfig struct {
	Port              int
	HealthCheckPort   int
	JWTSecret         string
	SessionConfigPath string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Load loads configuration from environment variables, loading a .env
// file first if one is present in the working directory.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "session_engine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		System: SystemConfig{
			Port:              getEnvAsInt("SESSION_ENGINE_PORT", 8090),
			HealthCheckPort:   getEnvAsInt("SESSION_ENGINE_HEALTH_PORT", 8091),
			JWTSecret:         getEnv("SESSION_ENGINE_JWT_SECRET", ""),
			SessionConfigPath: getEnv("SESSION_ENGINE_CONFIG_PATH", "session.json"),
			ReadTimeout:       getEnvAsDuration("SESSION_ENGINE_READ_TIMEOUT", 5*time.Second),
			WriteTimeout:      getEnvAsDuration("SESSION_ENGINE_WRITE_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the settings every deployment must supply.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.System.SessionConfigPath == "" {
		return fmt.Errorf("SESSION_ENGINE_CONFIG_PATH is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
