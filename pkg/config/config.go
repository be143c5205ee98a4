package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// Config holds audit ledger configuration.
type Config struct {
	LogLevel string

	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string

	// ChecksumKey is the hex-encoded HMAC key. Empty means unkeyed
	// sha256 digests.
	ChecksumKey []byte

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	OTLPEndpoint string
	OTLPEnabled  bool

	AppendRatePerSec float64
	AppendBurst      int

	VerifyChunkSize int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:         getEnv("AUDIT_LOG_LEVEL", "INFO"),
		DatabaseDriver:   getEnv("AUDIT_DB_DRIVER", "postgres"),
		DatabaseURL:      getEnv("AUDIT_DATABASE_URL", "postgres://audit@localhost:5432/audit?sslmode=disable"),
		RedisAddr:        os.Getenv("AUDIT_REDIS_ADDR"),
		RedisPassword:    os.Getenv("AUDIT_REDIS_PASSWORD"),
		OTLPEndpoint:     getEnv("AUDIT_OTLP_ENDPOINT", "localhost:4317"),
		OTLPEnabled:      os.Getenv("AUDIT_OTLP_ENABLED") == "true",
		AppendRatePerSec: getEnvFloat("AUDIT_APPEND_RATE", 500),
		AppendBurst:      getEnvInt("AUDIT_APPEND_BURST", 100),
		VerifyChunkSize:  getEnvInt("AUDIT_VERIFY_CHUNK", 200),
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return nil, fmt.Errorf("config: unsupported AUDIT_DB_DRIVER %q", cfg.DatabaseDriver)
	}

	if raw := os.Getenv("AUDIT_CHECKSUM_KEY"); raw != "" {
		key, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("config: AUDIT_CHECKSUM_KEY is not valid hex: %w", err)
		}
		cfg.ChecksumKey = key
	}

	cfg.RedisDB = getEnvInt("AUDIT_REDIS_DB", 0)

	return cfg, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(name string, fallback float64) float64 {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
