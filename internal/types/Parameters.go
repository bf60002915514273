/*

This file contains the tunable parameters of the controller and keeper. A new
version is stored in the database every time the operator changes them.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BandParameters holds the band and timing parameters of the controller.
type BandParameters struct {
	FloorPrice        sdkmath.Int   `json:"floor_price"`         // Lower edge of the band (8 decimals), must be below TargetPrice
	CapPrice          sdkmath.Int   `json:"cap_price"`           // Upper edge of the band (8 decimals), must be above TargetPrice
	HarvestCooldown   time.Duration `json:"harvest_cooldown"`    // Minimum time between two reward harvests
	TwapWindow        time.Duration `json:"twap_window"`         // Averaging window of the TWAP oracle
	TwapMaxAge        time.Duration `json:"twap_max_age"`        // TWAP rounds older than this are rejected as stale (0 disables)
	KeeperMaxAttempts int           `json:"keeper_max_attempts"` // Proposals derived per cycle; a stale proposal is re-derived until this is reached
}

// Band returns the price band part of the parameters.
func (p BandParameters) Band() Band {
	return Band{Floor: p.FloorPrice, Cap: p.CapPrice}
}
