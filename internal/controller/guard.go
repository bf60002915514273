/*

This file contains the execution path: every rebalancing handler re-reads the
prices, checks that its regime still holds, runs the move against a scratch copy
of the ledger and commits only if the price moved toward the peg without
crossing the far edge of the band. Anything else rolls the whole call back.

*/

package controller

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/metrics"
	"github.com/elys-network/pegguard/internal/types"
)

// BuyAndBurn spends idle reference on the managed token and burns it. Requires both prices below the floor.
func (c *Controller) BuyAndBurn(amount sdkmath.Int) (types.ActionReceipt, error) {
	return c.rebalance(types.ActionBuyAndBurn, amount)
}

// WithdrawBuyAndBurn unwinds LP shares, burns the managed leg and buys-and-burns with the reference leg.
// Requires both prices below the floor.
func (c *Controller) WithdrawBuyAndBurn(shares sdkmath.Int) (types.ActionReceipt, error) {
	return c.rebalance(types.ActionWithdrawBuyAndBurn, shares)
}

// MintAndSell mints the managed token and sells it for reference. Requires both prices above the cap.
func (c *Controller) MintAndSell(amount sdkmath.Int) (types.ActionReceipt, error) {
	return c.rebalance(types.ActionMintAndSell, amount)
}

// MintAndAddLiquidity deploys idle reference as staked liquidity. Requires both prices at or above the floor.
func (c *Controller) MintAndAddLiquidity(amount sdkmath.Int) (types.ActionReceipt, error) {
	return c.rebalance(types.ActionMintAndAddLiquidity, amount)
}

// Execute dispatches a proposal to its handler. caller only matters for harvesting.
func (c *Controller) Execute(caller types.Address, proposal types.Proposal) (types.ActionReceipt, error) {
	switch {
	case proposal.IsEmpty():
		return types.ActionReceipt{
			Action:    types.ActionNone,
			Amount:    sdkmath.ZeroInt(),
			Success:   true,
			Message:   "nothing to do",
			Timestamp: c.chain.Now(),
		}, nil
	case proposal.Action.IsRebalance():
		return c.rebalance(proposal.Action, proposal.Amount)
	case proposal.Action == types.ActionHarvestReward:
		receipt := types.ActionReceipt{Action: types.ActionHarvestReward, Timestamp: c.chain.Now()}
		reward, err := c.HarvestReward(caller)
		if err != nil {
			receipt.Amount = sdkmath.ZeroInt()
			receipt.Message = err.Error()
			return receipt, err
		}
		receipt.Amount = reward
		receipt.Success = true
		return receipt, nil
	}
	err := fmt.Errorf("%w: %q", ErrUnknownAction, proposal.Action)
	metrics.RecordExecution(string(proposal.Action), metrics.OutcomeError)
	return types.ActionReceipt{Action: proposal.Action, Amount: proposal.Amount, Message: err.Error(), Timestamp: c.chain.Now()}, err
}

func (c *Controller) rebalance(action types.ActionType, amount sdkmath.Int) (types.ActionReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	guardLogger := logger.GetForComponent("invariant_guard")
	receipt := types.ActionReceipt{Action: action, Amount: amount}
	if amount.IsNil() {
		receipt.Amount = sdkmath.ZeroInt()
	}

	var (
		prices   types.PriceSnapshot
		after    sdkmath.Int
		position types.LiquidityPosition
		idle     sdkmath.Int
	)
	err := c.chain.Atomic(func(st *ledger.State) error {
		receipt.Timestamp = st.Now
		var err error
		prices, err = c.feed().Snapshot(st)
		if err != nil {
			return errors.Join(ErrPreconditionNotMet, err)
		}
		if err := c.checkPrecondition(action, prices); err != nil {
			return err
		}
		if amount.IsNil() || !amount.IsPositive() {
			return fmt.Errorf("%w: %s %s", ErrZeroAmount, action, receipt.Amount)
		}

		after, err = c.apply(st, action, amount)
		if err != nil {
			return err
		}
		if err := c.checkPostcondition(action, prices.Spot, after); err != nil {
			return err
		}

		m := c.moves()
		position = m.position(st)
		idle = st.Bank.BalanceOf(c.pair.ReferenceDenom, c.address)
		return nil
	})

	receipt.SpotBefore = prices.Spot
	if err != nil {
		receipt.Message = err.Error()
		metrics.RecordExecution(string(action), outcomeOf(err))
		guardLogger.Warn().
			Err(err).
			Str("action", string(action)).
			Str("amount", receipt.Amount.String()).
			Str("spotBefore", prices.Spot.String()).
			Str("twap", prices.Twap.String()).
			Msg("Rebalance rejected and rolled back")
		return receipt, err
	}

	receipt.Success = true
	receipt.SpotAfter = after
	metrics.RecordExecution(string(action), metrics.OutcomeSuccess)
	metrics.RecordPrices(prices.Twap, after)
	metrics.RecordPosition(idle, position.DirectShares, position.StakedShares)

	guardLogger.Info().
		Str("action", string(action)).
		Str("amount", amount.String()).
		Str("spotBefore", prices.Spot.String()).
		Str("spotAfter", after.String()).
		Str("twap", prices.Twap.String()).
		Msg("Rebalance committed")

	c.emit(types.EventRebalanced, receipt.Timestamp, map[string]string{
		"action":     string(action),
		"amount":     amount.String(),
		"spotBefore": prices.Spot.String(),
		"spotAfter":  after.String(),
	})
	return receipt, nil
}

// checkPrecondition confirms the regime the action was proposed for still holds.
func (c *Controller) checkPrecondition(action types.ActionType, prices types.PriceSnapshot) error {
	if c.paused {
		return errors.Join(ErrPreconditionNotMet, ErrPaused)
	}
	band := c.band()
	var ok bool
	switch action {
	case types.ActionBuyAndBurn, types.ActionWithdrawBuyAndBurn:
		ok = analyzer.IsBelowFloor(prices, band)
	case types.ActionMintAndSell:
		ok = analyzer.IsAboveCap(prices, band)
	case types.ActionMintAndAddLiquidity:
		ok = analyzer.IsAtOrAboveFloor(prices, band)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if !ok {
		return fmt.Errorf("%w: %s needs a different regime (twap=%s spot=%s floor=%s cap=%s)",
			ErrPreconditionNotMet, action, prices.Twap, prices.Spot, band.Floor, band.Cap)
	}
	return nil
}

// checkPostcondition confirms the move went toward the peg and stopped inside the band.
func (c *Controller) checkPostcondition(action types.ActionType, before, after sdkmath.Int) error {
	var ok bool
	switch action {
	case types.ActionBuyAndBurn, types.ActionWithdrawBuyAndBurn:
		ok = after.GT(before) && after.LTE(c.capPrice)
	case types.ActionMintAndSell:
		ok = after.LT(before) && after.GTE(c.floorPrice)
	default:
		return nil
	}
	if !ok {
		return fmt.Errorf("%w: %s moved spot %s -> %s (floor=%s cap=%s)",
			ErrPostconditionNotMet, action, before, after, c.floorPrice, c.capPrice)
	}
	return nil
}

func (c *Controller) apply(st *ledger.State, action types.ActionType, amount sdkmath.Int) (sdkmath.Int, error) {
	m := c.moves()
	switch action {
	case types.ActionBuyAndBurn:
		return m.buyAndBurn(st, amount)
	case types.ActionWithdrawBuyAndBurn:
		return m.withdrawBuyAndBurn(st, amount)
	case types.ActionMintAndSell:
		return m.mintAndSell(st, amount)
	case types.ActionMintAndAddLiquidity:
		return m.mintAndAddLiquidity(st, amount)
	}
	return sdkmath.Int{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrPreconditionNotMet):
		return metrics.OutcomePrecondition
	case errors.Is(err, ErrPostconditionNotMet):
		return metrics.OutcomePostcondition
	default:
		return metrics.OutcomeError
	}
}

// HarvestReward claims the gauge reward to the reward recipient and returns the amount.
// The caller must be the owner or a registered harvester.
func (c *Controller) HarvestReward(caller types.Address) (sdkmath.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	harvestLogger := logger.GetForComponent("harvester")
	if caller != c.owner && !c.harvesters[caller] {
		metrics.RecordExecution(string(types.ActionHarvestReward), metrics.OutcomeError)
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %s may not harvest", ErrUnauthorized, caller)
	}

	var (
		reward      sdkmath.Int
		harvestedAt = c.lastHarvest
	)
	err := c.chain.Atomic(func(st *ledger.State) error {
		if !c.lastHarvest.IsZero() && st.Now.Sub(c.lastHarvest) < c.harvestCooldown {
			return fmt.Errorf("%w: last harvest %s, cooldown %s",
				ErrHarvestCooldown, c.lastHarvest.Format("2006-01-02 15:04:05"), c.harvestCooldown)
		}
		var err error
		reward, err = st.Gauge.GetReward(st.Now, c.address)
		if err != nil {
			return err
		}
		if err := st.Bank.Transfer(st.Gauge.RewardDenom, c.address, c.rewardRecipient, reward); err != nil {
			return err
		}
		harvestedAt = st.Now
		return nil
	})
	if err != nil {
		metrics.RecordExecution(string(types.ActionHarvestReward), metrics.OutcomeError)
		harvestLogger.Warn().Err(err).Str("caller", string(caller)).Msg("Harvest rejected")
		return sdkmath.ZeroInt(), err
	}

	c.lastHarvest = harvestedAt
	metrics.RecordExecution(string(types.ActionHarvestReward), metrics.OutcomeSuccess)
	c.emit(types.EventRewardHarvested, harvestedAt, map[string]string{
		"caller":    string(caller),
		"recipient": string(c.rewardRecipient),
		"amount":    reward.String(),
	})
	return reward, nil
}
