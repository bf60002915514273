// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/pegguard/internal/types"
	"github.com/rs/zerolog/log"
)

// SaveBandParameters stores a new version of the band parameters. With makeActive
// the previously active version of configName is deactivated in the same transaction.
func SaveBandParameters(params types.BandParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Band().Validate(); err != nil {
		return 0, err
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.Exec(`UPDATE band_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
		INSERT INTO band_parameters (
			version, config_name, is_active, activated_at, created_at,
			floor_price, cap_price,
			harvest_cooldown_seconds, twap_window_seconds, twap_max_age_seconds,
			keeper_max_attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.FloorPrice.String(), params.CapPrice.String(),
		int64(params.HarvestCooldown/time.Second), int64(params.TwapWindow/time.Second), int64(params.TwapMaxAge/time.Second),
		params.KeeperMaxAttempts,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert band parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("paramsId", paramsID).
		Bool("active", makeActive).
		Msg("Saved band parameters")
	return paramsID, nil
}

// LoadActiveBandParameters loads the active version of configName.
func LoadActiveBandParameters(configName string) (*types.BandParameters, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT floor_price, cap_price,
		       harvest_cooldown_seconds, twap_window_seconds, twap_max_age_seconds,
		       keeper_max_attempts
		FROM band_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		floor, ceiling               string
		cooldown, window, maxAgeSecs int64
		p                            types.BandParameters
	)
	err := DB.QueryRow(query, configName).Scan(&floor, &ceiling, &cooldown, &window, &maxAgeSecs, &p.KeeperMaxAttempts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no active band parameters found for config '%s'", configName)
		}
		return nil, fmt.Errorf("failed to scan active band parameters for config '%s': %w", configName, err)
	}

	if p.FloorPrice, err = parseNumeric(floor); err != nil {
		return nil, fmt.Errorf("failed to parse floor_price: %w", err)
	}
	if p.CapPrice, err = parseNumeric(ceiling); err != nil {
		return nil, fmt.Errorf("failed to parse cap_price: %w", err)
	}
	p.HarvestCooldown = time.Duration(cooldown) * time.Second
	p.TwapWindow = time.Duration(window) * time.Second
	p.TwapMaxAge = time.Duration(maxAgeSecs) * time.Second

	log.Info().Str("config", configName).Msg("Loaded active band parameters")
	return &p, nil
}

// GetActiveBandParametersID returns the params_id of the active version, or nil if there is none.
func GetActiveBandParametersID(configName string) (*int64, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT params_id
		FROM band_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var paramsID int64
	err := DB.QueryRow(query, configName).Scan(&paramsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug().Str("config", configName).Msg("No active band parameters found")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active band parameters ID for config '%s': %w", configName, err)
	}
	return &paramsID, nil
}

// NextBandParametersVersion returns one past the highest stored version of configName.
func NextBandParametersVersion(configName string) (int, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	var version int
	err := DB.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM band_parameters WHERE config_name = $1;`, configName).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get next band parameters version for config '%s': %w", configName, err)
	}
	return version, nil
}

// SaveActiveBand stores band as a new active version of configName, carrying the
// remaining parameters over from the currently active version.
func SaveActiveBand(band types.Band, configName string) (int64, error) {
	params, err := LoadActiveBandParameters(configName)
	if err != nil {
		return 0, err
	}
	params.FloorPrice = band.Floor
	params.CapPrice = band.Cap

	version, err := NextBandParametersVersion(configName)
	if err != nil {
		return 0, err
	}
	return SaveBandParameters(*params, configName, version, true)
}
