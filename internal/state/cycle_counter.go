/*

This file manages the persistent keeper cycle counter. It is stored in the
database so cycle numbers keep increasing across restarts.

*/

package state

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ensureCycleCounterTable creates the single-row cycle_counter table.
func ensureCycleCounterTable() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := DB.Exec(`
		CREATE TABLE IF NOT EXISTS cycle_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_cycle INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);`)
	if err != nil {
		return fmt.Errorf("failed to create cycle_counter table: %w", err)
	}
	return nil
}

// CurrentCycleNumber returns the number of the last cycle started, 0 before the first.
func CurrentCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	var current int
	err := DB.QueryRow(`SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return current, nil
}

// NextCycleNumber increments the counter and returns the new value. The row is
// created on first use.
func NextCycleNumber() (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	upsert := `
		INSERT INTO cycle_counter (id, current_cycle) VALUES (1, 1)
		ON CONFLICT (id) DO UPDATE
		SET current_cycle = cycle_counter.current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		RETURNING current_cycle;`

	var next int
	if err := DB.QueryRow(upsert).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Debug().Int("cycleNumber", next).Msg("Incremented cycle counter")
	return next, nil
}

// ResetCycleNumber sets the counter (maintenance only).
func ResetCycleNumber(cycleNumber int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	_, err := DB.Exec(`
		INSERT INTO cycle_counter (id, current_cycle) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE
		SET current_cycle = EXCLUDED.current_cycle,
		    updated_at = CURRENT_TIMESTAMP;`, cycleNumber)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}

	log.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
