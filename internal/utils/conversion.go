/*
This file contains common utility functions for converting between sdk amounts,
fixed point prices and floats. Floats are only used for analytics and metrics;
everything that moves funds stays in sdkmath.Int.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrTooPrecise       = errors.New("value has more decimals than the precision allows")
)

// pow10 returns 10^precision as a decimal.
func pow10(precision int) (sdkmath.LegacyDec, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	return sdkmath.LegacyNewDecFromInt(sdkmath.NewIntWithDecimal(1, precision)), nil
}

// SDKIntToFloat64 converts an SDK Int with precision decimals to float64
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	factor, err := pow10(precision)
	if err != nil {
		return 0, err
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	resultFloat, err := sdkmath.LegacyNewDecFromInt(amount).Quo(factor).Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}
	return resultFloat, nil
}

// Float64ToSDKInt converts a float64 to an SDK Int with precision decimals, truncating
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	factor, err := pow10(precision)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Use string conversion to avoid floating point precision issues
	decAmount, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.*f", precision, amount))
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}
	return decAmount.Mul(factor).TruncateInt(), nil
}

// PriceToFloat64 converts a fixed point price (types.PricePrecision decimals) to float64.
func PriceToFloat64(price sdkmath.Int) (float64, error) {
	return SDKIntToFloat64(price, types.PricePrecision)
}

// ParsePrice parses a human decimal such as "0.999" into a fixed point price.
// Values with more than types.PricePrecision decimals are rejected rather than rounded.
func ParsePrice(raw string) (sdkmath.Int, error) {
	return ParseDecimal(raw, types.PricePrecision)
}

// ParseDecimal parses a non-negative decimal string into an Int with precision decimals.
func ParseDecimal(raw string, precision int) (sdkmath.Int, error) {
	factor, err := pow10(precision)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: empty value", ErrConversionFailed)
	}
	dec, err := sdkmath.LegacyNewDecFromStr(raw)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q: %w", ErrConversionFailed, raw, err)
	}
	if dec.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrAmountNegative, raw)
	}
	scaled := dec.Mul(factor)
	if !scaled.IsInteger() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q at %d decimals", ErrTooPrecise, raw, precision)
	}
	return scaled.TruncateInt(), nil
}
