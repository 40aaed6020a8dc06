// Package config loads runtime configuration from the environment plus
// optional per-jurisdiction YAML profiles.
package config

import (
	"os"
	"strconv"
)

// Config holds process configuration.
type Config struct {
	LogLevel string
	// StoreBackend selects the record store: "sqlite" (default) or "postgres".
	StoreBackend string
	// DatabasePath is the SQLite file for the sqlite backend.
	DatabasePath string
	// DatabaseURL is the DSN for the postgres backend.
	DatabaseURL string
	// SigningKey is the master key the verification signer derives from.
	SigningKey string
	// CorroborationThreshold is the minting weight floor.
	CorroborationThreshold float64
	// ProfilesDir holds jurisdiction profile YAML files.
	ProfilesDir string
}

// Load reads configuration from environment variables with defaults fit for
// a local single-node deployment.
func Load() *Config {
	cfg := &Config{
		LogLevel:               getenv("LOG_LEVEL", "INFO"),
		StoreBackend:           getenv("STORE_BACKEND", "sqlite"),
		DatabasePath:           getenv("DATABASE_PATH", "chittychain.db"),
		DatabaseURL:            getenv("DATABASE_URL", "postgres://chitty@localhost:5432/chittychain?sslmode=disable"),
		SigningKey:             os.Getenv("SIGNING_KEY"),
		CorroborationThreshold: 0.70,
		ProfilesDir:            getenv("PROFILES_DIR", "profiles"),
	}
	if v := os.Getenv("CORROBORATION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.CorroborationThreshold = f
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
