/*

This file contains the ledger State: the bank plus the pool and gauge that settle
against it. A State is a plain value graph, so Clone gives an independent copy
that simulations and transactions can mutate freely.

*/

package ledger

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// Config describes the market a new State is created with.
type Config struct {
	PoolAddress  types.Address
	Token0       string
	Token1       string
	ShareDenom   string
	FeeBps       int64
	GaugeAddress types.Address
	RewardDenom  string
	RewardRate   sdkmath.Int
	GenesisTime  time.Time
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.PoolAddress == "" {
		errs = append(errs, errors.New("pool address is required"))
	}
	if cfg.GaugeAddress == "" {
		errs = append(errs, errors.New("gauge address is required"))
	}
	if cfg.Token0 == "" || cfg.Token1 == "" || cfg.Token0 == cfg.Token1 {
		errs = append(errs, fmt.Errorf("pool needs two distinct denoms, got %q/%q", cfg.Token0, cfg.Token1))
	}
	if cfg.ShareDenom == "" || cfg.ShareDenom == cfg.Token0 || cfg.ShareDenom == cfg.Token1 {
		errs = append(errs, fmt.Errorf("invalid share denom %q", cfg.ShareDenom))
	}
	if cfg.RewardDenom == "" {
		errs = append(errs, errors.New("reward denom is required"))
	}
	if cfg.FeeBps < 0 || cfg.FeeBps >= FeeDenominator {
		errs = append(errs, fmt.Errorf("fee must be in [0, %d) bps, got %d", FeeDenominator, cfg.FeeBps))
	}
	if !cfg.RewardRate.IsNil() && cfg.RewardRate.IsNegative() {
		errs = append(errs, errors.New("reward rate must not be negative"))
	}
	return errors.Join(errs...)
}

// State is the full ledger: balances, the pool and the gauge, at a point in time.
type State struct {
	Now   time.Time
	Bank  *Bank
	Pool  *Pool
	Gauge *Gauge
}

// NewState creates an empty market.
func NewState(cfg Config) (*State, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid ledger config: %w", err)
	}
	rate := cfg.RewardRate
	if rate.IsNil() {
		rate = sdkmath.ZeroInt()
	}
	bank := NewBank()
	return &State{
		Now:  cfg.GenesisTime,
		Bank: bank,
		Pool: &Pool{
			Address:    cfg.PoolAddress,
			Token0:     cfg.Token0,
			Token1:     cfg.Token1,
			ShareDenom: cfg.ShareDenom,
			FeeBps:     cfg.FeeBps,
			reserve0:   sdkmath.ZeroInt(),
			reserve1:   sdkmath.ZeroInt(),
			bank:       bank,
		},
		Gauge: &Gauge{
			Address:        cfg.GaugeAddress,
			StakeDenom:     cfg.ShareDenom,
			RewardDenom:    cfg.RewardDenom,
			RewardRate:     rate,
			totalStaked:    sdkmath.ZeroInt(),
			staked:         make(map[types.Address]sdkmath.Int),
			rewardPerShare: sdkmath.LegacyZeroDec(),
			paidPerShare:   make(map[types.Address]sdkmath.LegacyDec),
			owed:           make(map[types.Address]sdkmath.Int),
			lastUpdate:     cfg.GenesisTime,
			bank:           bank,
		},
	}, nil
}

// Clone returns a deep, independent copy.
func (s *State) Clone() *State {
	bank := s.Bank.clone()
	return &State{
		Now:   s.Now,
		Bank:  bank,
		Pool:  s.Pool.clone(bank),
		Gauge: s.Gauge.clone(bank),
	}
}

// Reserves implements PoolReader.
func (s *State) Reserves() (sdkmath.Int, sdkmath.Int) {
	return s.Pool.Reserves()
}

// BlockTime implements PoolReader.
func (s *State) BlockTime() time.Time {
	return s.Now
}

// SeedLiquidity mints amount0/amount1 to provider, deposits them and returns the shares minted.
// Used to build paper markets and test fixtures.
func (s *State) SeedLiquidity(provider types.Address, amount0, amount1 sdkmath.Int) (sdkmath.Int, error) {
	if err := s.Bank.Mint(s.Pool.Token0, provider, amount0); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := s.Bank.Mint(s.Pool.Token1, provider, amount1); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := s.Bank.Transfer(s.Pool.Token0, provider, s.Pool.Address, amount0); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if err := s.Bank.Transfer(s.Pool.Token1, provider, s.Pool.Address, amount1); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return s.Pool.Mint(provider)
}

// SwapExactIn sells amountIn of denomIn from trader into the pool and returns the output.
// This is the path an outside trader takes; the controller composes the pool primitives itself.
func (s *State) SwapExactIn(trader types.Address, denomIn string, amountIn sdkmath.Int) (sdkmath.Int, error) {
	out, err := s.Pool.GetAmountOut(amountIn, denomIn)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !out.IsPositive() {
		return sdkmath.ZeroInt(), ErrInsufficientOutput
	}
	if err := s.Bank.Transfer(denomIn, trader, s.Pool.Address, amountIn); err != nil {
		return sdkmath.ZeroInt(), err
	}
	amount0Out, amount1Out := out, sdkmath.ZeroInt()
	if denomIn == s.Pool.Token0 {
		amount0Out, amount1Out = sdkmath.ZeroInt(), out
	}
	if err := s.Pool.Swap(amount0Out, amount1Out, trader); err != nil {
		return sdkmath.ZeroInt(), err
	}
	return out, nil
}

// Export is a comparable, JSON-friendly dump of a State.
type Export struct {
	Now         time.Time                           `json:"now"`
	Balances    map[string]map[types.Address]string `json:"balances"`
	Supply      map[string]string                   `json:"supply"`
	Reserve0    string                              `json:"reserve0"`
	Reserve1    string                              `json:"reserve1"`
	Staked      map[types.Address]string            `json:"staked"`
	TotalStaked string                              `json:"total_staked"`
	Owed        map[types.Address]string            `json:"owed"`
	PerShare    string                              `json:"reward_per_share"`
	LastAccrual time.Time                           `json:"last_accrual"`
	Denoms      []string                            `json:"denoms"`
}

// Export dumps the state. Two states with equal exports are indistinguishable.
func (s *State) Export() Export {
	e := Export{
		Now:         s.Now,
		Balances:    make(map[string]map[types.Address]string),
		Supply:      make(map[string]string),
		Staked:      make(map[types.Address]string),
		Owed:        make(map[types.Address]string),
		TotalStaked: s.Gauge.totalStaked.String(),
		PerShare:    s.Gauge.rewardPerShare.String(),
		LastAccrual: s.Gauge.lastUpdate,
		Denoms:      s.Bank.Denoms(),
	}
	for denom, accounts := range s.Bank.balances {
		dump := make(map[types.Address]string, len(accounts))
		for addr, bal := range accounts {
			dump[addr] = bal.String()
		}
		e.Balances[denom] = dump
	}
	for denom, supply := range s.Bank.supply {
		e.Supply[denom] = supply.String()
	}
	e.Reserve0, e.Reserve1 = s.Pool.reserve0.String(), s.Pool.reserve1.String()
	for addr, st := range s.Gauge.staked {
		if !st.IsZero() {
			e.Staked[addr] = st.String()
		}
	}
	for addr, owed := range s.Gauge.owed {
		if !owed.IsZero() {
			e.Owed[addr] = owed.String()
		}
	}
	return e
}
