// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/rs/zerolog/log"
)

const cycleColumns = `
	snapshot_id, cycle_number, cycle_id, snapshot_timestamp, band_params_id,
	keeper, attempts, error_message,
	initial_prices, initial_position, initial_idle_reference,
	proposal, receipt,
	final_prices, final_position, final_idle_reference, peg_distance_change`

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	// Marshal all JSONB fields
	initialPricesJSON, err := json.Marshal(snapshot.InitialPrices)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal initial_prices: %w", err)
	}
	initialPositionJSON, err := json.Marshal(snapshot.InitialPosition)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal initial_position: %w", err)
	}
	proposalJSON, err := json.Marshal(snapshot.Proposal)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal proposal: %w", err)
	}
	receiptJSON, err := json.Marshal(snapshot.Receipt)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal receipt: %w", err)
	}
	finalPricesJSON, err := json.Marshal(snapshot.FinalPrices)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal final_prices: %w", err)
	}
	finalPositionJSON, err := json.Marshal(snapshot.FinalPosition)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal final_position: %w", err)
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, band_params_id,
			keeper, attempts, error_message,
			initial_prices, initial_position, initial_idle_reference,
			action, amount, proposal, receipt,
			final_prices, final_position, final_idle_reference, peg_distance_change
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.BandParamsID,
		string(snapshot.Keeper), snapshot.Attempts, nullableString(snapshot.ErrorMessage),
		initialPricesJSON, initialPositionJSON, numeric(snapshot.InitialIdleReference),
		string(snapshot.Proposal.Action), numeric(snapshot.Proposal.Amount), proposalJSON, receiptJSON,
		finalPricesJSON, finalPositionJSON, numeric(snapshot.FinalIdleReference), numeric(snapshot.PegDistanceChange),
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshotId", snapshotID).
		Int("cycleNumber", snapshot.CycleNumber).
		Str("action", string(snapshot.Proposal.Action)).
		Str("pegDistanceChange", numeric(snapshot.PegDistanceChange)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanCycle reads one row selected with cycleColumns.
func scanCycle(row rowScanner) (types.CycleSnapshot, error) {
	var (
		cycle                                  types.CycleSnapshot
		bandParamsID                           sql.NullInt64
		errorMessage                           sql.NullString
		keeper                                 string
		initialIdle, finalIdle, pegChange      string
		initialPricesJSON, initialPositionJSON []byte
		proposalJSON, receiptJSON              []byte
		finalPricesJSON, finalPositionJSON     []byte
	)
	err := row.Scan(
		&cycle.SnapshotID, &cycle.CycleNumber, &cycle.CycleID, &cycle.Timestamp, &bandParamsID,
		&keeper, &cycle.Attempts, &errorMessage,
		&initialPricesJSON, &initialPositionJSON, &initialIdle,
		&proposalJSON, &receiptJSON,
		&finalPricesJSON, &finalPositionJSON, &finalIdle, &pegChange,
	)
	if err != nil {
		return cycle, err
	}

	cycle.Keeper = types.Address(keeper)
	if bandParamsID.Valid {
		id := bandParamsID.Int64
		cycle.BandParamsID = &id
	}
	if errorMessage.Valid {
		cycle.ErrorMessage = errorMessage.String
	}

	if err := unmarshalJSONFields(&cycle, initialPricesJSON, initialPositionJSON, proposalJSON, receiptJSON, finalPricesJSON, finalPositionJSON); err != nil {
		return cycle, err
	}
	for _, field := range []struct {
		raw  string
		dest *sdkmath.Int
		name string
	}{
		{initialIdle, &cycle.InitialIdleReference, "initial_idle_reference"},
		{finalIdle, &cycle.FinalIdleReference, "final_idle_reference"},
		{pegChange, &cycle.PegDistanceChange, "peg_distance_change"},
	} {
		value, err := parseNumeric(field.raw)
		if err != nil {
			return cycle, fmt.Errorf("failed to parse %s: %w", field.name, err)
		}
		*field.dest = value
	}
	return cycle, nil
}

// unmarshalJSONFields unmarshals the JSONB columns of a cycle snapshot.
func unmarshalJSONFields(cycle *types.CycleSnapshot, initialPricesJSON, initialPositionJSON, proposalJSON, receiptJSON, finalPricesJSON, finalPositionJSON []byte) error {
	fields := []struct {
		raw  []byte
		dest any
		name string
	}{
		{initialPricesJSON, &cycle.InitialPrices, "initial prices"},
		{initialPositionJSON, &cycle.InitialPosition, "initial position"},
		{proposalJSON, &cycle.Proposal, "proposal"},
		{finalPricesJSON, &cycle.FinalPrices, "final prices"},
		{finalPositionJSON, &cycle.FinalPosition, "final position"},
	}
	for _, f := range fields {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dest); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", f.name, err)
		}
	}

	if len(receiptJSON) > 0 && string(receiptJSON) != "null" {
		var receipt types.ActionReceipt
		if err := json.Unmarshal(receiptJSON, &receipt); err != nil {
			return fmt.Errorf("failed to unmarshal receipt: %w", err)
		}
		cycle.Receipt = &receipt
	}
	return nil
}

// numeric renders an amount for a NUMERIC column; nil amounts are stored as 0.
func numeric(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

// parseNumeric parses a NUMERIC(40, 0) column back into an Int.
func parseNumeric(raw string) (sdkmath.Int, error) {
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid integer %q", raw)
	}
	return v, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
