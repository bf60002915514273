/*

This file contains the pairing metadata of the managed token against its reference asset,
and the helpers that orient pool tuples onto (reference, managed).

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrPairDenomMissing = errors.New("pool legs must contain the reference and managed denoms")
	ErrPairSameDenom    = errors.New("reference and managed denoms must differ")
	ErrPairBadPrecision = errors.New("token decimals must be between 0 and 18")
)

// Address identifies an account on the ledger (a wallet, the pool, the gauge, the controller...)
type Address string

// Pair describes the managed token / reference asset pool the controller defends.
type Pair struct {
	Token0            string `json:"token0" yaml:"token0"`                         // pool leg 0 denom
	Token1            string `json:"token1" yaml:"token1"`                         // pool leg 1 denom
	ReferenceDenom    string `json:"reference_denom" yaml:"reference_denom"`       // e.g., "uusdc"
	ManagedDenom      string `json:"managed_denom" yaml:"managed_denom"`           // e.g., "ustable"
	ReferenceDecimals int    `json:"reference_decimals" yaml:"reference_decimals"` // e.g., 6
	ManagedDecimals   int    `json:"managed_decimals" yaml:"managed_decimals"`     // e.g., 6
}

// Validate checks that the pool legs are exactly the reference and managed denoms.
func (p Pair) Validate() error {
	if p.ReferenceDenom == "" || p.ManagedDenom == "" {
		return ErrPairDenomMissing
	}
	if p.ReferenceDenom == p.ManagedDenom {
		return ErrPairSameDenom
	}
	legsMatch := (p.Token0 == p.ReferenceDenom && p.Token1 == p.ManagedDenom) ||
		(p.Token0 == p.ManagedDenom && p.Token1 == p.ReferenceDenom)
	if !legsMatch {
		return fmt.Errorf("%w: pool has %s/%s, want %s/%s", ErrPairDenomMissing, p.Token0, p.Token1, p.ReferenceDenom, p.ManagedDenom)
	}
	if p.ReferenceDecimals < 0 || p.ReferenceDecimals > 18 || p.ManagedDecimals < 0 || p.ManagedDecimals > 18 {
		return ErrPairBadPrecision
	}
	return nil
}

// ReferenceIsToken0 reports whether pool leg 0 is the reference asset.
func (p Pair) ReferenceIsToken0() bool {
	return p.Token0 == p.ReferenceDenom
}

// Orient maps a (token0, token1) tuple onto (reference, managed).
func (p Pair) Orient(amount0, amount1 sdkmath.Int) (reference, managed sdkmath.Int) {
	if p.ReferenceIsToken0() {
		return amount0, amount1
	}
	return amount1, amount0
}

// Unorient maps a (reference, managed) tuple back onto (token0, token1).
func (p Pair) Unorient(reference, managed sdkmath.Int) (amount0, amount1 sdkmath.Int) {
	if p.ReferenceIsToken0() {
		return reference, managed
	}
	return managed, reference
}

// ManagedFromReference re-expresses a reference amount in managed-token base units (1:1 at peg).
func (p Pair) ManagedFromReference(amount sdkmath.Int) sdkmath.Int {
	return rescale(amount, p.ReferenceDecimals, p.ManagedDecimals)
}

// ReferenceFromManaged re-expresses a managed amount in reference base units (1:1 at peg).
func (p Pair) ReferenceFromManaged(amount sdkmath.Int) sdkmath.Int {
	return rescale(amount, p.ManagedDecimals, p.ReferenceDecimals)
}

func rescale(amount sdkmath.Int, fromDecimals, toDecimals int) sdkmath.Int {
	switch {
	case fromDecimals == toDecimals:
		return amount
	case fromDecimals < toDecimals:
		return amount.Mul(Pow10(toDecimals - fromDecimals))
	default:
		return amount.Quo(Pow10(fromDecimals - toDecimals))
	}
}

// Pow10 returns 10^n as an Int.
func Pow10(n int) sdkmath.Int {
	result := sdkmath.OneInt()
	ten := sdkmath.NewInt(10)
	for i := 0; i < n; i++ {
		result = result.Mul(ten)
	}
	return result
}
