/*

This file contains the default band parameters of the peg controller.

They are stored as version 1 of the default config the first time the binary
starts against an empty database, and can be overridden from the environment.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

const (
	DefaultBandConfigName    = "default_peg_band"
	DefaultBandConfigVersion = 1
)

// DefaultBandParameters provides a baseline band used when no active parameters are found in the database.
var DefaultBandParameters = types.BandParameters{
	FloorPrice: sdkmath.NewInt(99_900_000), // 0.999
	// Rationale: 10 bps below the peg. Inside the band the controller only adds liquidity,
	// so a tight floor keeps it reacting before arbitrageurs widen the discount.

	CapPrice: sdkmath.NewInt(100_100_000), // 1.001
	// Rationale: Symmetric with the floor. Selling newly minted supply above 1.001
	// captures the premium without pushing the price below the peg.

	HarvestCooldown: 24 * time.Hour,
	// Rationale: Gauge rewards accrue linearly; harvesting more than once a day only
	// adds bookkeeping without changing what the reward recipient receives.

	TwapWindow: 30 * time.Minute,
	// Rationale: Long enough that a single block of manipulated spot cannot move the
	// average, short enough that the controller follows genuine depegs within the hour.

	TwapMaxAge: 5 * time.Minute,
	// Rationale: If no observation has been recorded for five minutes the average no
	// longer describes the market; refusing to act is safer than acting on it.

	KeeperMaxAttempts: 2,
	// Rationale: One re-derivation absorbs a proposal that went stale between
	// DetermineNextAction and Execute. More retries would chase a moving market.
}
