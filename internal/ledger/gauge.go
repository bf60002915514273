/*

This file contains the staking gauge. LP shares deposited here accrue a reward
token at a fixed emission rate, shared pro rata through a reward-per-share
accumulator. Rewards are minted on claim.

*/

package ledger

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// Gauge stakes LP shares and pays a reward token.
type Gauge struct {
	Address     types.Address
	StakeDenom  string
	RewardDenom string
	RewardRate  sdkmath.Int // reward base units emitted per second across all stakers

	totalStaked    sdkmath.Int
	staked         map[types.Address]sdkmath.Int
	rewardPerShare sdkmath.LegacyDec
	paidPerShare   map[types.Address]sdkmath.LegacyDec
	owed           map[types.Address]sdkmath.Int
	lastUpdate     time.Time
	bank           *Bank
}

// BalanceOf returns the shares staked by owner.
func (g *Gauge) BalanceOf(owner types.Address) sdkmath.Int {
	if s, ok := g.staked[owner]; ok {
		return s
	}
	return sdkmath.ZeroInt()
}

// TotalStaked returns the shares staked by everyone.
func (g *Gauge) TotalStaked() sdkmath.Int {
	return g.totalStaked
}

// Earned returns the reward owner could claim at now.
func (g *Gauge) Earned(now time.Time, owner types.Address) sdkmath.Int {
	perShare := g.rewardPerShareAt(now)
	paid, ok := g.paidPerShare[owner]
	if !ok {
		paid = sdkmath.LegacyZeroDec()
	}
	pending := perShare.Sub(paid).MulInt(g.BalanceOf(owner)).TruncateInt()
	if prev, ok := g.owed[owner]; ok {
		pending = pending.Add(prev)
	}
	return pending
}

// Deposit stakes amount shares from owner.
func (g *Gauge) Deposit(now time.Time, owner types.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	g.checkpoint(now, owner)
	if err := g.bank.Transfer(g.StakeDenom, owner, g.Address, amount); err != nil {
		return err
	}
	g.staked[owner] = g.BalanceOf(owner).Add(amount)
	g.totalStaked = g.totalStaked.Add(amount)
	return nil
}

// Withdraw returns amount staked shares to owner.
func (g *Gauge) Withdraw(now time.Time, owner types.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}
	bal := g.BalanceOf(owner)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s staked %s, withdrawing %s", ErrInsufficientStake, owner, bal, amount)
	}
	g.checkpoint(now, owner)
	if err := g.bank.Transfer(g.StakeDenom, g.Address, owner, amount); err != nil {
		return err
	}
	g.staked[owner] = bal.Sub(amount)
	g.totalStaked = g.totalStaked.Sub(amount)
	return nil
}

// GetReward mints everything owner has earned to owner and returns the amount.
func (g *Gauge) GetReward(now time.Time, owner types.Address) (sdkmath.Int, error) {
	g.checkpoint(now, owner)
	reward := g.owed[owner]
	if reward.IsNil() || reward.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	if err := g.bank.Mint(g.RewardDenom, owner, reward); err != nil {
		return sdkmath.ZeroInt(), err
	}
	delete(g.owed, owner)
	return reward, nil
}

func (g *Gauge) rewardPerShareAt(now time.Time) sdkmath.LegacyDec {
	if g.totalStaked.IsZero() || g.RewardRate.IsNil() || !now.After(g.lastUpdate) {
		return g.rewardPerShare
	}
	elapsed := now.Sub(g.lastUpdate)
	emitted := sdkmath.LegacyNewDecFromInt(g.RewardRate).
		MulInt64(elapsed.Nanoseconds()).
		QuoInt64(int64(time.Second))
	return g.rewardPerShare.Add(emitted.QuoInt(g.totalStaked))
}

func (g *Gauge) checkpoint(now time.Time, owner types.Address) {
	g.owed[owner] = g.Earned(now, owner)
	g.rewardPerShare = g.rewardPerShareAt(now)
	if now.After(g.lastUpdate) {
		g.lastUpdate = now
	}
	g.paidPerShare[owner] = g.rewardPerShare
}

func (g *Gauge) clone(bank *Bank) *Gauge {
	c := *g
	c.bank = bank
	c.staked = make(map[types.Address]sdkmath.Int, len(g.staked))
	for k, v := range g.staked {
		c.staked[k] = v
	}
	c.paidPerShare = make(map[types.Address]sdkmath.LegacyDec, len(g.paidPerShare))
	for k, v := range g.paidPerShare {
		c.paidPerShare[k] = v
	}
	c.owed = make(map[types.Address]sdkmath.Int, len(g.owed))
	for k, v := range g.owed {
		c.owed[k] = v
	}
	return &c
}
