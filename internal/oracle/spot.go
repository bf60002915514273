/*

This file contains the spot oracle: the instantaneous pool price of the managed
token in units of the reference asset, with types.PricePrecision decimals.

*/

package oracle

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/types"
)

var ErrEmptyReserves = errors.New("pool has an empty reserve")

// SpotOracle reads the current pool price.
type SpotOracle interface {
	CurrentSpotPrice(pool ledger.PoolReader) (time.Time, sdkmath.Int, error)
}

// PoolSpotOracle prices the managed token from the pool reserves.
type PoolSpotOracle struct {
	Pair types.Pair
}

// NewPoolSpotOracle returns a spot oracle for pair.
func NewPoolSpotOracle(pair types.Pair) *PoolSpotOracle {
	return &PoolSpotOracle{Pair: pair}
}

// CurrentSpotPrice implements SpotOracle.
func (o *PoolSpotOracle) CurrentSpotPrice(pool ledger.PoolReader) (time.Time, sdkmath.Int, error) {
	r0, r1 := pool.Reserves()
	price, err := SpotFromReserves(o.Pair, r0, r1)
	if err != nil {
		return time.Time{}, sdkmath.ZeroInt(), err
	}
	return pool.BlockTime(), price, nil
}

// SpotFromReserves computes reference-per-managed with PricePrecision decimals,
// correcting for the two tokens' decimals.
func SpotFromReserves(pair types.Pair, reserve0, reserve1 sdkmath.Int) (sdkmath.Int, error) {
	ref, managed := pair.Orient(reserve0, reserve1)
	if ref.IsNil() || managed.IsNil() || !ref.IsPositive() || !managed.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: reference=%s managed=%s", ErrEmptyReserves, ref, managed)
	}
	numerator := ref.Mul(types.Pow10(pair.ManagedDecimals)).Mul(types.Pow10(types.PricePrecision))
	denominator := managed.Mul(types.Pow10(pair.ReferenceDecimals))
	return numerator.Quo(denominator), nil
}
