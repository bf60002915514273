package controller

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/types"
)

// RequestTokens pays amount of denom to the stability module itself.
func (c *Controller) RequestTokens(caller types.Address, denom string, amount sdkmath.Int) error {
	return c.RequestTokensFor(caller, denom, amount, caller)
}

// RequestTokensFor pays amount of denom to recipient on behalf of the stability module.
// Idle balance is used first. Otherwise exactly enough LP shares are unwound to cover
// the shortfall. Reference the unwind freed beyond the request is redeployed and excess
// managed burned; reference that was idle before the request stays idle.
// The request is filled in full or not at all.
func (c *Controller) RequestTokensFor(caller types.Address, denom string, amount sdkmath.Int, recipient types.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	provisionLogger := logger.GetForComponent("provisioning")

	if caller != c.stabilityModule {
		return fmt.Errorf("%w: only the stability module may request tokens, got %s", ErrUnauthorized, caller)
	}
	if denom != c.pair.ReferenceDenom && denom != c.pair.ManagedDenom {
		return fmt.Errorf("%w: %s", ErrUnsupportedToken, denom)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: requested %s", ErrZeroAmount, denom)
	}
	if recipient == "" {
		return fmt.Errorf("%w: recipient", ErrInvalidAddress)
	}

	var (
		unwound sdkmath.Int
		at      = c.chain.Now()
	)
	err := c.chain.Atomic(func(st *ledger.State) error {
		at = st.Now
		var err error
		unwound, err = c.provision(st, denom, amount, recipient)
		return err
	})
	if err != nil {
		provisionLogger.Warn().
			Err(err).
			Str("denom", denom).
			Str("amount", amount.String()).
			Str("recipient", string(recipient)).
			Msg("Token request rejected")
		return err
	}

	provisionLogger.Info().
		Str("denom", denom).
		Str("amount", amount.String()).
		Str("recipient", string(recipient)).
		Str("sharesUnwound", unwound.String()).
		Msg("Tokens provided")
	c.emit(types.EventTokensProvided, at, map[string]string{
		"denom":         denom,
		"amount":        amount.String(),
		"recipient":     string(recipient),
		"sharesUnwound": unwound.String(),
	})
	return nil
}

// provision returns the number of LP shares it had to unwind.
func (c *Controller) provision(st *ledger.State, denom string, amount sdkmath.Int, recipient types.Address) (sdkmath.Int, error) {
	m := c.moves()
	idle := st.Bank.BalanceOf(denom, c.address)
	if idle.GTE(amount) {
		return sdkmath.ZeroInt(), st.Bank.Transfer(denom, c.address, recipient, amount)
	}

	shortfall := amount.Sub(idle)
	shares, err := sharesToCover(st, denom, shortfall)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	held := m.position(st).Shares()
	if shares.GT(held) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %s short, unwinding needs %s shares, hold %s",
			ErrInsufficientFunds, shortfall, denom, shares, held)
	}
	// A managed request leaves the idle reference untouched; it stays reserved for buy-and-burn.
	reserved := sdkmath.ZeroInt()
	if denom == c.pair.ManagedDenom {
		reserved = st.Bank.BalanceOf(c.pair.ReferenceDenom, c.address)
	}
	if _, _, err := m.removeLiquidity(st, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := st.Bank.Transfer(denom, c.address, recipient, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}

	if err := c.redeploy(st, m, reserved); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares, m.burnManagedHeld(st)
}

// redeploy puts the idle reference above reserved back into the pool, if it is
// enough to mint at least one share. Smaller amounts stay idle.
func (c *Controller) redeploy(st *ledger.State, m moves, reserved sdkmath.Int) error {
	idle := st.Bank.BalanceOf(c.pair.ReferenceDenom, c.address).Sub(reserved)
	if !idle.IsPositive() {
		return nil
	}
	_, shares, err := m.matchedManaged(st, idle)
	if err != nil || !shares.IsPositive() {
		return nil
	}
	_, err = m.addLiquidity(st, idle)
	return err
}

// sharesToCover returns ceil(shortfall * totalShares / reserve).
func sharesToCover(st *ledger.State, denom string, shortfall sdkmath.Int) (sdkmath.Int, error) {
	reserve, err := st.Pool.ReserveOf(denom)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	total := st.Pool.TotalShares()
	if !reserve.IsPositive() || !total.IsPositive() {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: pool holds no %s", ErrInsufficientFunds, denom)
	}
	if shortfall.GTE(reserve) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s %s exceeds the pool reserve %s", ErrInsufficientFunds, shortfall, denom, reserve)
	}
	numerator := shortfall.Mul(total)
	return numerator.Add(reserve).SubRaw(1).Quo(reserve), nil
}
