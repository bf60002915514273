/*

This file contains the unguarded ledger moves behind every rebalancing handler.
They run against whatever State they are given: a scratch copy inside
Chain.Atomic when executing, or a throwaway clone when the planner probes them.
Each move returns the spot price after it ran.

*/

package controller

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/types"
)

type moves struct {
	pair   types.Pair
	self   types.Address
	minter ledger.Minter
	spot   oracle.SpotOracle
}

func (m moves) price(st *ledger.State) (sdkmath.Int, error) {
	_, price, err := m.spot.CurrentSpotPrice(st)
	return price, err
}

// buyAndBurn swaps idle reference for managed and burns what it bought.
func (m moves) buyAndBurn(st *ledger.State, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsPositive() {
		if err := m.requireBalance(st, m.pair.ReferenceDenom, amount); err != nil {
			return sdkmath.Int{}, err
		}
		if err := m.buyAndBurnHeld(st, amount); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return m.price(st)
}

// withdrawBuyAndBurn unwinds shares LP shares, burns the managed leg and spends
// the reference leg on buy-and-burn.
func (m moves) withdrawBuyAndBurn(st *ledger.State, shares sdkmath.Int) (sdkmath.Int, error) {
	if shares.IsPositive() {
		reference, managed, err := m.removeLiquidity(st, shares)
		if err != nil {
			return sdkmath.Int{}, err
		}
		if err := st.Bank.Burn(m.pair.ManagedDenom, m.self, managed); err != nil {
			return sdkmath.Int{}, err
		}
		if err := m.buyAndBurnHeld(st, reference); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return m.price(st)
}

// mintAndSell mints amount of the managed token and sells it into the pool.
// The reference proceeds stay idle on the controller.
func (m moves) mintAndSell(st *ledger.State, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsPositive() {
		if err := m.minter.Mint(st, m.self, amount); err != nil {
			return sdkmath.Int{}, fmt.Errorf("mint %s %s: %w", amount, m.pair.ManagedDenom, err)
		}
		if _, err := m.swap(st, m.pair.ManagedDenom, amount); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return m.price(st)
}

// mintAndAddLiquidity pairs amount of idle reference with managed at the current
// reserve ratio, stakes the LP shares and burns any managed left over.
func (m moves) mintAndAddLiquidity(st *ledger.State, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsPositive() {
		if err := m.requireBalance(st, m.pair.ReferenceDenom, amount); err != nil {
			return sdkmath.Int{}, err
		}
		if _, err := m.addLiquidity(st, amount); err != nil {
			return sdkmath.Int{}, err
		}
		if err := m.burnManagedHeld(st); err != nil {
			return sdkmath.Int{}, err
		}
	}
	return m.price(st)
}

func (m moves) buyAndBurnHeld(st *ledger.State, reference sdkmath.Int) error {
	if !reference.IsPositive() {
		return nil
	}
	bought, err := m.swap(st, m.pair.ReferenceDenom, reference)
	if err != nil {
		return err
	}
	return st.Bank.Burn(m.pair.ManagedDenom, m.self, bought)
}

// swap sells amountIn of denomIn held by the controller into the pool.
func (m moves) swap(st *ledger.State, denomIn string, amountIn sdkmath.Int) (sdkmath.Int, error) {
	out, err := st.Pool.GetAmountOut(amountIn, denomIn)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := st.Bank.Transfer(denomIn, m.self, st.Pool.Address, amountIn); err != nil {
		return sdkmath.Int{}, err
	}
	referenceOut, managedOut := sdkmath.ZeroInt(), out
	if denomIn == m.pair.ManagedDenom {
		referenceOut, managedOut = out, sdkmath.ZeroInt()
	}
	amount0Out, amount1Out := m.pair.Unorient(referenceOut, managedOut)
	if err := st.Pool.Swap(amount0Out, amount1Out, m.self); err != nil {
		return sdkmath.Int{}, err
	}
	return out, nil
}

// matchedManaged returns the managed amount that pairs with reference at the
// current reserve ratio, and the shares such a deposit would mint.
func (m moves) matchedManaged(st *ledger.State, reference sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	refReserve, managedReserve := m.pair.Orient(st.Reserves())
	if !refReserve.IsPositive() || !managedReserve.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: pool is empty", ledger.ErrInsufficientLiquidity)
	}
	managed := reference.Mul(managedReserve).Quo(refReserve)
	total := st.Pool.TotalShares()
	shares := sdkmath.MinInt(
		reference.Mul(total).Quo(refReserve),
		managed.Mul(total).Quo(managedReserve),
	)
	return managed, shares, nil
}

// addLiquidity deposits reference plus its matched managed amount, minting any
// managed the controller does not hold, and stakes the resulting shares.
func (m moves) addLiquidity(st *ledger.State, reference sdkmath.Int) (sdkmath.Int, error) {
	managed, expected, err := m.matchedManaged(st, reference)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !expected.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s reference mints no shares", ledger.ErrInsufficientLiquidity, reference)
	}
	held := st.Bank.BalanceOf(m.pair.ManagedDenom, m.self)
	if held.LT(managed) {
		if err := m.minter.Mint(st, m.self, managed.Sub(held)); err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("mint %s %s: %w", managed.Sub(held), m.pair.ManagedDenom, err)
		}
	}
	if err := st.Bank.Transfer(m.pair.ReferenceDenom, m.self, st.Pool.Address, reference); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := st.Bank.Transfer(m.pair.ManagedDenom, m.self, st.Pool.Address, managed); err != nil {
		return sdkmath.ZeroInt(), err
	}
	shares, err := st.Pool.Mint(m.self)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := m.stake(st, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, nil
}

// removeLiquidity redeems shares, taking them from the gauge first and from
// the directly held balance after that. It returns (reference, managed) received.
func (m moves) removeLiquidity(st *ledger.State, shares sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	staked := st.Gauge.BalanceOf(m.self)
	direct := st.Bank.BalanceOf(st.Pool.ShareDenom, m.self)
	if staked.Add(direct).LT(shares) {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), fmt.Errorf("%w: need %s shares, hold %s staked and %s direct",
			ErrInsufficientFunds, shares, staked, direct)
	}
	if fromGauge := sdkmath.MinInt(shares, staked); fromGauge.IsPositive() {
		if err := m.unstake(st, fromGauge); err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
	}
	if err := st.Bank.Transfer(st.Pool.ShareDenom, m.self, st.Pool.Address, shares); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	amount0, amount1, err := st.Pool.Burn(m.self)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	reference, managed := m.pair.Orient(amount0, amount1)
	return reference, managed, nil
}

func (m moves) stake(st *ledger.State, shares sdkmath.Int) error {
	return st.Gauge.Deposit(st.Now, m.self, shares)
}

func (m moves) unstake(st *ledger.State, shares sdkmath.Int) error {
	return st.Gauge.Withdraw(st.Now, m.self, shares)
}

func (m moves) burnManagedHeld(st *ledger.State) error {
	leftover := st.Bank.BalanceOf(m.pair.ManagedDenom, m.self)
	if !leftover.IsPositive() {
		return nil
	}
	return st.Bank.Burn(m.pair.ManagedDenom, m.self, leftover)
}

func (m moves) requireBalance(st *ledger.State, denom string, amount sdkmath.Int) error {
	if held := st.Bank.BalanceOf(denom, m.self); held.LT(amount) {
		return fmt.Errorf("%w: need %s %s, hold %s", ErrInsufficientFunds, amount, denom, held)
	}
	return nil
}

// position values the controller's LP shares at the current reserves.
func (m moves) position(st *ledger.State) types.LiquidityPosition {
	pos := types.LiquidityPosition{
		DirectShares: st.Bank.BalanceOf(st.Pool.ShareDenom, m.self),
		StakedShares: st.Gauge.BalanceOf(m.self),
		TotalShares:  st.Pool.TotalShares(),
		Reference:    sdkmath.ZeroInt(),
		Managed:      sdkmath.ZeroInt(),
	}
	if !pos.TotalShares.IsPositive() {
		return pos
	}
	refReserve, managedReserve := m.pair.Orient(st.Reserves())
	shares := pos.Shares()
	pos.Reference = shares.Mul(refReserve).Quo(pos.TotalShares)
	pos.Managed = shares.Mul(managedReserve).Quo(pos.TotalShares)
	return pos
}
