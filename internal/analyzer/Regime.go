/*

This file classifies the market into the regime that decides which family of
actions the controller may take. Both prices must agree: a manipulated spot
price alone never moves the market out of band.

*/

package analyzer

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// PegDistance is the score every candidate action is judged by: |price - TargetPrice|. Lower is better.
func PegDistance(price sdkmath.Int) sdkmath.Int {
	return price.Sub(types.TargetPrice).Abs()
}

// IsBelowFloor reports whether both the TWAP and the spot are strictly below the floor.
func IsBelowFloor(prices types.PriceSnapshot, band types.Band) bool {
	return prices.Twap.LT(band.Floor) && prices.Spot.LT(band.Floor)
}

// IsAboveCap reports whether both the TWAP and the spot are strictly above the cap.
func IsAboveCap(prices types.PriceSnapshot, band types.Band) bool {
	return prices.Twap.GT(band.Cap) && prices.Spot.GT(band.Cap)
}

// IsAtOrAboveFloor reports whether both prices are at or above the floor.
func IsAtOrAboveFloor(prices types.PriceSnapshot, band types.Band) bool {
	return prices.Twap.GTE(band.Floor) && prices.Spot.GTE(band.Floor)
}

// ClassifyRegime maps prices and the pause flag onto a regime.
// Mixed signals (only one of the two prices outside the band) classify as in band.
func ClassifyRegime(prices types.PriceSnapshot, band types.Band, paused bool) types.Regime {
	switch {
	case paused:
		return types.RegimePaused
	case IsBelowFloor(prices, band):
		return types.RegimeBelowFloor
	case IsAboveCap(prices, band):
		return types.RegimeAboveCap
	default:
		return types.RegimeInBand
	}
}
