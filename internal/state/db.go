// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS band_parameters (
			params_id SERIAL PRIMARY KEY,
			version INTEGER NOT NULL DEFAULT 1,
			config_name VARCHAR(255) NOT NULL DEFAULT 'default',
			is_active BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			floor_price NUMERIC(40, 0) NOT NULL,
			cap_price NUMERIC(40, 0) NOT NULL,
			harvest_cooldown_seconds BIGINT NOT NULL,
			twap_window_seconds BIGINT NOT NULL,
			twap_max_age_seconds BIGINT NOT NULL DEFAULT 0,
			keeper_max_attempts INTEGER NOT NULL DEFAULT 2,
			CONSTRAINT uq_band_parameters_config_version UNIQUE (config_name, version),
			CONSTRAINT band_order_check CHECK (floor_price > 0 AND floor_price < 100000000 AND cap_price > 100000000)
		);
		CREATE INDEX IF NOT EXISTS idx_band_parameters_config_active_timestamp ON band_parameters(config_name, is_active, activated_at DESC);

		CREATE TABLE IF NOT EXISTS cycle_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			cycle_number INTEGER NOT NULL,
			cycle_id VARCHAR(64) NOT NULL,
			snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			band_params_id INTEGER REFERENCES band_parameters(params_id),
			keeper VARCHAR(255) NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,

			-- Pre-Action State
			initial_prices JSONB,
			initial_position JSONB,
			initial_idle_reference NUMERIC(40, 0) NOT NULL DEFAULT 0,

			-- The Decision
			action VARCHAR(50) NOT NULL,
			amount NUMERIC(40, 0) NOT NULL DEFAULT 0,
			proposal JSONB,
			receipt JSONB,

			-- The Outcome
			final_prices JSONB,
			final_position JSONB,
			final_idle_reference NUMERIC(40, 0) NOT NULL DEFAULT 0,
			peg_distance_change NUMERIC(40, 0) NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_timestamp ON cycle_snapshots(snapshot_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_cycle ON cycle_snapshots(cycle_number DESC);
		CREATE INDEX IF NOT EXISTS idx_cycle_snapshots_action ON cycle_snapshots(action);

		CREATE TABLE IF NOT EXISTS controller_events (
			event_id VARCHAR(64) PRIMARY KEY,
			event_type VARCHAR(64) NOT NULL,
			event_timestamp TIMESTAMPTZ NOT NULL,
			attributes JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_controller_events_timestamp ON controller_events(event_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_controller_events_type ON controller_events(event_type);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	if err := ensureCycleCounterTable(); err != nil {
		return err
	}
	log.Info().Msg("Database schema ensured (band_parameters, cycle_snapshots, controller_events, cycle_counter).")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
