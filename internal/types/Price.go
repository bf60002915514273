/*

This file contains the price types used by the oracle, analyzer and controller.
All on-ledger prices are fixed point with PricePrecision decimals.

*/

package types

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
)

// PricePrecision is the number of decimals carried by every price.
const PricePrecision = 8

// TargetPrice is the peg: 1.00 with PricePrecision decimals.
var TargetPrice = sdkmath.NewInt(100_000_000)

var ErrBandOrder = errors.New("band must satisfy 0 < floor < target < cap")

// PriceSnapshot pairs the manipulation-resistant TWAP with the instantaneous pool spot price.
type PriceSnapshot struct {
	Twap sdkmath.Int `json:"twap"`
	Spot sdkmath.Int `json:"spot"`
	At   time.Time   `json:"at"`
}

// PriceData holds a single observed price (float form, for analytics)
type PriceData struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
}

// Band is the tolerated price interval around the peg.
type Band struct {
	Floor sdkmath.Int `json:"floor_price"`
	Cap   sdkmath.Int `json:"cap_price"`
}

// Validate enforces 0 < floor < TargetPrice < cap.
func (b Band) Validate() error {
	if b.Floor.IsNil() || b.Cap.IsNil() {
		return fmt.Errorf("%w: floor and cap must be set", ErrBandOrder)
	}
	if !b.Floor.IsPositive() || !b.Floor.LT(TargetPrice) || !b.Cap.GT(TargetPrice) {
		return fmt.Errorf("%w: floor=%s cap=%s target=%s", ErrBandOrder, b.Floor, b.Cap, TargetPrice)
	}
	return nil
}

// Regime is the coarse classification of the current market state.
type Regime string

const (
	RegimePaused     Regime = "PAUSED"
	RegimeBelowFloor Regime = "BELOW_FLOOR"
	RegimeAboveCap   Regime = "ABOVE_CAP"
	RegimeInBand     Regime = "IN_BAND"
)
