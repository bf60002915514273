package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/utils"
	"github.com/rs/zerolog/log"
)

// PegPerformance aggregates the effect of all recorded keeper cycles.
type PegPerformance struct {
	TotalCycles            int                      `json:"total_cycles"`
	ActionCycles           int                      `json:"action_cycles"`
	FailedCycles           int                      `json:"failed_cycles"`
	TotalPegDistanceChange string                   `json:"total_peg_distance_change"`
	ActionCounts           map[types.ActionType]int `json:"action_counts"`
	LastUpdated            *time.Time               `json:"last_updated,omitempty"`
}

// GetRecentCycles retrieves the most recent cycle snapshots, newest first.
func GetRecentCycles(limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	limit = clampLimit(limit)
	query := `SELECT ` + cycleColumns + `
		FROM cycle_snapshots
		ORDER BY snapshot_timestamp DESC, snapshot_id DESC
		LIMIT $1`

	rows, err := DB.Query(query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent cycles")
		return nil, fmt.Errorf("failed to query recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []types.CycleSnapshot
	for rows.Next() {
		cycle, err := scanCycle(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan cycle row")
			continue // Skip this row and continue with others
		}
		cycles = append(cycles, cycle)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(cycles)).Int("limit", limit).Msg("Retrieved recent cycles")
	return cycles, nil
}

// GetCycleByID retrieves a specific cycle by its snapshot ID.
func GetCycleByID(snapshotID int64) (*types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `SELECT ` + cycleColumns + ` FROM cycle_snapshots WHERE snapshot_id = $1`
	cycle, err := scanCycle(DB.QueryRow(query, snapshotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: snapshot %d", ErrCycleNotFound, snapshotID)
		}
		log.Error().Err(err).Int64("snapshotId", snapshotID).Msg("Failed to query cycle by ID")
		return nil, fmt.Errorf("failed to query cycle by ID: %w", err)
	}
	return &cycle, nil
}

// GetLatestCycle returns the newest snapshot.
func GetLatestCycle() (*types.CycleSnapshot, error) {
	cycles, err := GetRecentCycles(1)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, ErrCycleNotFound
	}
	return &cycles[0], nil
}

// GetPegPerformance aggregates all recorded cycles.
func GetPegPerformance() (*PegPerformance, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	perf := &PegPerformance{ActionCounts: make(map[types.ActionType]int)}

	query := `
		SELECT
			COUNT(*) AS total_cycles,
			COUNT(CASE WHEN action <> $1 THEN 1 END) AS action_cycles,
			COUNT(CASE WHEN error_message IS NOT NULL THEN 1 END) AS failed_cycles,
			COALESCE(SUM(peg_distance_change), 0)::TEXT AS total_peg_distance_change,
			MAX(snapshot_timestamp) AS last_updated
		FROM cycle_snapshots`

	var lastUpdated sql.NullTime
	err := DB.QueryRow(query, string(types.ActionNone)).Scan(
		&perf.TotalCycles,
		&perf.ActionCycles,
		&perf.FailedCycles,
		&perf.TotalPegDistanceChange,
		&lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get peg performance: %w", err)
	}
	if lastUpdated.Valid {
		perf.LastUpdated = &lastUpdated.Time
	}

	rows, err := DB.Query(`SELECT action, COUNT(*) FROM cycle_snapshots GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cycle actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			action string
			count  int
		)
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		perf.ActionCounts[types.ActionType(action)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Info().
		Int("totalCycles", perf.TotalCycles).
		Int("actionCycles", perf.ActionCycles).
		Str("totalPegDistanceChange", perf.TotalPegDistanceChange).
		Msg("Retrieved peg performance")
	return perf, nil
}

// GetPriceHistory returns the spot prices observed at the start of the most recent
// cycles, oldest first, for volatility analysis.
func GetPriceHistory(limit int) ([]types.PriceData, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT snapshot_timestamp, initial_prices->>'spot'
		FROM cycle_snapshots
		WHERE initial_prices->>'spot' IS NOT NULL
		ORDER BY snapshot_timestamp DESC
		LIMIT $1`

	rows, err := DB.Query(query, clampHistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var history []types.PriceData
	for rows.Next() {
		var (
			at  time.Time
			raw string
		)
		if err := rows.Scan(&at, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		spot, err := parseNumeric(raw)
		if err != nil || !spot.IsPositive() {
			continue
		}
		price, err := utils.PriceToFloat64(spot)
		if err != nil {
			continue
		}
		history = append(history, types.PriceData{Timestamp: at, Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	// Reverse into chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10
	}
	return limit
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 || limit > 10_000 {
		return 500
	}
	return limit
}
