/*

This file contains the constant-product pool. It follows the two-step pattern of
the classic pair contract: callers transfer tokens to the pool account first,
then call Swap/Mint/Burn, which settle against the difference between the pool's
bank balance and its cached reserves.

*/

package ledger

import (
	"fmt"
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

const (
	// MinimumLiquidity shares are locked forever on the first mint.
	MinimumLiquidity = 1000
	// FeeDenominator is the basis of FeeBps.
	FeeDenominator = 10_000
	// DeadAddress receives the locked minimum liquidity.
	DeadAddress types.Address = "dead"
)

// PoolReader is the read-only view of the market the spot oracle needs. State implements it.
type PoolReader interface {
	Reserves() (sdkmath.Int, sdkmath.Int)
	BlockTime() time.Time
}

// Pool is a two-asset constant-product market with a swap fee.
type Pool struct {
	Address    types.Address
	Token0     string
	Token1     string
	ShareDenom string
	FeeBps     int64

	reserve0 sdkmath.Int
	reserve1 sdkmath.Int
	bank     *Bank
}

// Reserves returns the cached reserves (token0, token1).
func (p *Pool) Reserves() (sdkmath.Int, sdkmath.Int) {
	return p.reserve0, p.reserve1
}

// TotalShares returns the LP share supply.
func (p *Pool) TotalShares() sdkmath.Int {
	return p.bank.TotalSupply(p.ShareDenom)
}

// GetAmountOut quotes the output of swapping amountIn of tokenIn, fee included.
func (p *Pool) GetAmountOut(amountIn sdkmath.Int, tokenIn string) (sdkmath.Int, error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), ErrInsufficientInput
	}
	reserveIn, reserveOut, err := p.orient(tokenIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !reserveIn.IsPositive() || !reserveOut.IsPositive() {
		return sdkmath.ZeroInt(), ErrInsufficientLiquidity
	}
	amountInWithFee := amountIn.MulRaw(FeeDenominator - p.FeeBps)
	numerator := amountInWithFee.Mul(reserveOut)
	denominator := reserveIn.MulRaw(FeeDenominator).Add(amountInWithFee)
	return numerator.Quo(denominator), nil
}

// Swap sends the requested outputs to `to` after checking that the inputs
// already transferred to the pool keep the fee-adjusted product from falling.
func (p *Pool) Swap(amount0Out, amount1Out sdkmath.Int, to types.Address) error {
	if err := checkAmount(amount0Out); err != nil {
		return err
	}
	if err := checkAmount(amount1Out); err != nil {
		return err
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutput
	}
	if amount0Out.GTE(p.reserve0) || amount1Out.GTE(p.reserve1) {
		return fmt.Errorf("%w: requested %s/%s of reserves %s/%s", ErrInsufficientLiquidity, amount0Out, amount1Out, p.reserve0, p.reserve1)
	}
	if to == p.Address {
		return fmt.Errorf("%w: cannot swap to the pool itself", ErrInsufficientOutput)
	}

	if err := p.bank.Transfer(p.Token0, p.Address, to, amount0Out); err != nil {
		return err
	}
	if err := p.bank.Transfer(p.Token1, p.Address, to, amount1Out); err != nil {
		return err
	}

	balance0 := p.bank.BalanceOf(p.Token0, p.Address)
	balance1 := p.bank.BalanceOf(p.Token1, p.Address)
	amount0In := inflow(balance0, p.reserve0.Sub(amount0Out))
	amount1In := inflow(balance1, p.reserve1.Sub(amount1Out))
	if amount0In.IsZero() && amount1In.IsZero() {
		return ErrInsufficientInput
	}

	adjusted0 := balance0.MulRaw(FeeDenominator).Sub(amount0In.MulRaw(p.FeeBps))
	adjusted1 := balance1.MulRaw(FeeDenominator).Sub(amount1In.MulRaw(p.FeeBps))
	kBefore := p.reserve0.Mul(p.reserve1).MulRaw(FeeDenominator * FeeDenominator)
	if adjusted0.Mul(adjusted1).LT(kBefore) {
		return ErrInvariantViolated
	}

	p.reserve0, p.reserve1 = balance0, balance1
	return nil
}

// Mint issues LP shares to `to` for the tokens transferred to the pool since the last sync.
func (p *Pool) Mint(to types.Address) (sdkmath.Int, error) {
	balance0 := p.bank.BalanceOf(p.Token0, p.Address)
	balance1 := p.bank.BalanceOf(p.Token1, p.Address)
	amount0 := inflow(balance0, p.reserve0)
	amount1 := inflow(balance1, p.reserve1)

	totalShares := p.TotalShares()
	var liquidity sdkmath.Int
	if totalShares.IsZero() {
		root := sdkmath.NewIntFromBigInt(new(big.Int).Sqrt(amount0.Mul(amount1).BigInt()))
		liquidity = root.SubRaw(MinimumLiquidity)
		if !liquidity.IsPositive() {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: initial deposit too small", ErrInsufficientLiquidity)
		}
		if err := p.bank.Mint(p.ShareDenom, DeadAddress, sdkmath.NewInt(MinimumLiquidity)); err != nil {
			return sdkmath.ZeroInt(), err
		}
	} else {
		if !p.reserve0.IsPositive() || !p.reserve1.IsPositive() {
			return sdkmath.ZeroInt(), ErrInsufficientLiquidity
		}
		liquidity = sdkmath.MinInt(
			amount0.Mul(totalShares).Quo(p.reserve0),
			amount1.Mul(totalShares).Quo(p.reserve1),
		)
	}
	if !liquidity.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: no shares minted", ErrInsufficientLiquidity)
	}
	if err := p.bank.Mint(p.ShareDenom, to, liquidity); err != nil {
		return sdkmath.ZeroInt(), err
	}

	p.reserve0, p.reserve1 = balance0, balance1
	return liquidity, nil
}

// Burn redeems the LP shares transferred to the pool and sends the underlying tokens to `to`.
func (p *Pool) Burn(to types.Address) (sdkmath.Int, sdkmath.Int, error) {
	liquidity := p.bank.BalanceOf(p.ShareDenom, p.Address)
	totalShares := p.TotalShares()
	if !liquidity.IsPositive() || !totalShares.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: no shares to burn", ErrInsufficientLiquidity)
	}
	balance0 := p.bank.BalanceOf(p.Token0, p.Address)
	balance1 := p.bank.BalanceOf(p.Token1, p.Address)

	amount0 := liquidity.Mul(balance0).Quo(totalShares)
	amount1 := liquidity.Mul(balance1).Quo(totalShares)
	if !amount0.IsPositive() || !amount1.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: burn rounds to zero", ErrInsufficientLiquidity)
	}

	if err := p.bank.Burn(p.ShareDenom, p.Address, liquidity); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if err := p.bank.Transfer(p.Token0, p.Address, to, amount0); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	if err := p.bank.Transfer(p.Token1, p.Address, to, amount1); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	p.Sync()
	return amount0, amount1, nil
}

// Sync sets the reserves to the pool's bank balances.
func (p *Pool) Sync() {
	p.reserve0 = p.bank.BalanceOf(p.Token0, p.Address)
	p.reserve1 = p.bank.BalanceOf(p.Token1, p.Address)
}

// HasDenom reports whether denom is one of the pool legs.
func (p *Pool) HasDenom(denom string) bool {
	return denom == p.Token0 || denom == p.Token1
}

// ReserveOf returns the reserve of one leg.
func (p *Pool) ReserveOf(denom string) (sdkmath.Int, error) {
	switch denom {
	case p.Token0:
		return p.reserve0, nil
	case p.Token1:
		return p.reserve1, nil
	}
	return sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
}

func (p *Pool) orient(tokenIn string) (reserveIn, reserveOut sdkmath.Int, err error) {
	switch tokenIn {
	case p.Token0:
		return p.reserve0, p.reserve1, nil
	case p.Token1:
		return p.reserve1, p.reserve0, nil
	}
	return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: %s", ErrUnknownDenom, tokenIn)
}

func (p *Pool) clone(bank *Bank) *Pool {
	c := *p
	c.bank = bank
	return &c
}

// inflow returns balance - base when positive, zero otherwise.
func inflow(balance, base sdkmath.Int) sdkmath.Int {
	if balance.GT(base) {
		return balance.Sub(base)
	}
	return sdkmath.ZeroInt()
}
