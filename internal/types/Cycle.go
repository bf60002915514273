/*

This file contains the records the keeper persists for every cycle, and the
status view served over the API.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// CycleSnapshot captures the state before and after one keeper cycle.
type CycleSnapshot struct {
	SnapshotID   int64     `json:"snapshot_id,omitempty"` // Auto-incremented by DB
	CycleNumber  int       `json:"cycle_number"`
	CycleID      string    `json:"cycle_id"`
	Timestamp    time.Time `json:"timestamp"`
	BandParamsID *int64    `json:"band_params_id,omitempty"`
	Keeper       Address   `json:"keeper"`
	Attempts     int       `json:"attempts"`
	ErrorMessage string    `json:"error_message,omitempty"`

	InitialPrices        PriceSnapshot     `json:"initial_prices"`
	InitialPosition      LiquidityPosition `json:"initial_position"`
	InitialIdleReference sdkmath.Int       `json:"initial_idle_reference"`

	Proposal Proposal       `json:"proposal"`
	Receipt  *ActionReceipt `json:"receipt,omitempty"`

	FinalPrices        PriceSnapshot     `json:"final_prices"`
	FinalPosition      LiquidityPosition `json:"final_position"`
	FinalIdleReference sdkmath.Int       `json:"final_idle_reference"`

	// PegDistanceChange is |initial spot - target| - |final spot - target|; positive means closer to peg
	PegDistanceChange sdkmath.Int `json:"peg_distance_change"`
}

// ControllerStatus is a read-only view of the controller configuration and market state.
type ControllerStatus struct {
	Pair            Pair              `json:"pair"`
	Band            Band              `json:"band"`
	Paused          bool              `json:"paused"`
	Regime          Regime            `json:"regime"`
	Owner           Address           `json:"owner"`
	StabilityModule Address           `json:"stability_module"`
	RewardRecipient Address           `json:"reward_recipient"`
	Harvesters      []Address         `json:"harvesters"`
	HarvestCooldown time.Duration     `json:"harvest_cooldown"`
	LastHarvest     time.Time         `json:"last_harvest"`
	Prices          PriceSnapshot     `json:"prices"`
	PriceError      string            `json:"price_error,omitempty"`
	Position        LiquidityPosition `json:"position"`
	IdleReference   sdkmath.Int       `json:"idle_reference"`
	PendingReward   sdkmath.Int       `json:"pending_reward"`
}
