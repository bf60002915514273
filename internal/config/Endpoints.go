package config

import (
	"github.com/elys-network/pegguard/internal/state"
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// WebPort is the port of the HTTP API and /metrics.
	WebPort string

	// DatabaseEnabled is true when DB_HOST is set; otherwise cycles and events are kept in memory.
	DatabaseEnabled bool
	// Database holds the PostgreSQL connection parameters.
	Database state.DBConfig
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")

	host := getEnvOrDefault("DB_HOST", "")
	DatabaseEnabled = host != ""
	if !DatabaseEnabled {
		log.Debug().Str("WebPort", WebPort).Msg("Endpoint configuration loaded, database disabled.")
		return nil
	}

	port, err := getEnvAsUint64("DB_PORT", 5432)
	if err != nil {
		return err
	}
	user, err := getEnv("DB_USER")
	if err != nil {
		return err
	}
	name, err := getEnv("DB_NAME")
	if err != nil {
		return err
	}

	Database = state.DBConfig{
		Host:     host,
		Port:     int(port),
		User:     user,
		Password: getEnvOrDefault("DB_PASSWORD", ""),
		DBName:   name,
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	log.Debug().
		Str("WebPort", WebPort).
		Str("DBHost", Database.Host).
		Int("DBPort", Database.Port).
		Str("DBName", Database.DBName).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
