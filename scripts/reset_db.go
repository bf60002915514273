package main

import (
	"os"
	"strconv"

	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/state"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// tables are dropped in dependency order.
var tables = []string{
	"cycle_snapshots",
	"controller_events",
	"band_parameters",
	"cycle_counter",
}

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found or error loading .env file. Relying on OS environment variables.")
	}

	logger.Initialize(getEnv("LOG_LEVEL", "info"), "")
	log.Info().Msg("Starting database reset script...")

	dbCfg := state.DBConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     5432,
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
		SSLMode:  getEnv("DB_SSLMODE", "disable"),
	}
	if raw := os.Getenv("DB_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatal().Err(err).Str("DB_PORT", raw).Msg("DB_PORT must be an integer.")
		}
		dbCfg.Port = port
	}
	if dbCfg.User == "" {
		log.Fatal().Msg("DB_USER environment variable not set.")
	}
	if dbCfg.DBName == "" {
		log.Fatal().Msg("DB_NAME environment variable not set.")
	}

	log.Info().
		Str("host", dbCfg.Host).
		Int("port", dbCfg.Port).
		Str("user", dbCfg.User).
		Str("dbname", dbCfg.DBName).
		Msg("Connecting to database")

	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database connection")
	}
	defer state.CloseDB()

	log.Info().Strs("tables", tables).Msg("Connected to database. Dropping peg controller tables...")
	for _, table := range tables {
		if _, err := state.DB.Exec("DROP TABLE IF EXISTS " + table + " CASCADE"); err != nil {
			log.Fatal().Err(err).Str("table", table).Msg("Failed to drop table")
		}
	}
	log.Info().Msg("Successfully dropped all tables")

	// Recreate the schema
	log.Info().Msg("Recreating database schema...")
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to recreate database schema")
	}

	log.Info().Msg("Database reset complete!")
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
