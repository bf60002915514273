/*

This file contains the paper-market scenario: a YAML description of the pool,
gauge and balances the in-process ledger starts from.

*/

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/types"
	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

// Scenario seeds a paper market.
type Scenario struct {
	Genesis    time.Time          `yaml:"genesis"` // zero means now
	Pair       types.Pair         `yaml:"pair"`
	Pool       ScenarioPool       `yaml:"pool"`
	Gauge      ScenarioGauge      `yaml:"gauge"`
	Controller ScenarioController `yaml:"controller"`
	Balances   []ScenarioBalance  `yaml:"balances"`
}

// ScenarioPool describes the pool and the liquidity third parties provide.
type ScenarioPool struct {
	Address          types.Address `yaml:"address"`
	ShareDenom       string        `yaml:"share_denom"`
	FeeBps           int64         `yaml:"fee_bps"`
	Provider         types.Address `yaml:"provider"`
	ReferenceReserve string        `yaml:"reference_reserve"`
	ManagedReserve   string        `yaml:"managed_reserve"`
}

// ScenarioGauge describes the staking gauge.
type ScenarioGauge struct {
	Address     types.Address `yaml:"address"`
	RewardDenom string        `yaml:"reward_denom"`
	RewardRate  string        `yaml:"reward_rate"` // reward base units per second
}

// ScenarioController describes what the controller holds at genesis.
type ScenarioController struct {
	Reference     string `yaml:"reference"`      // reference deposited as controller-owned liquidity
	Managed       string `yaml:"managed"`        // managed deposited alongside it
	StakedShares  string `yaml:"staked_shares"`  // part of the resulting shares staked in the gauge
	IdleReference string `yaml:"idle_reference"` // reference held outside the pool
}

// ScenarioBalance is an extra bank balance, e.g. for an external trader.
type ScenarioBalance struct {
	Address types.Address `yaml:"address"`
	Denom   string        `yaml:"denom"`
	Amount  string        `yaml:"amount"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario %s: %w", path, err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScenario, err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	var errs []error
	if err := s.Pair.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Pool.Provider == "" {
		errs = append(errs, errors.New("pool provider is required"))
	}
	amounts := map[string]string{
		"pool.reference_reserve":    s.Pool.ReferenceReserve,
		"pool.managed_reserve":      s.Pool.ManagedReserve,
		"gauge.reward_rate":         s.Gauge.RewardRate,
		"controller.reference":      s.Controller.Reference,
		"controller.managed":        s.Controller.Managed,
		"controller.staked_shares":  s.Controller.StakedShares,
		"controller.idle_reference": s.Controller.IdleReference,
	}
	for i, b := range s.Balances {
		amounts[fmt.Sprintf("balances[%d].amount", i)] = b.Amount
		if b.Address == "" || b.Denom == "" {
			errs = append(errs, fmt.Errorf("balances[%d] needs an address and a denom", i))
		}
	}
	for field, raw := range amounts {
		if _, err := parseAmount(raw); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidScenario}, errs...)...)
	}
	return nil
}

// Build creates the genesis ledger with controller as the controller account.
func (s *Scenario) Build(controller types.Address) (*ledger.State, error) {
	genesis := s.Genesis
	if genesis.IsZero() {
		genesis = time.Now().UTC()
	}

	st, err := ledger.NewState(ledger.Config{
		PoolAddress:  orDefault(s.Pool.Address, "pool"),
		Token0:       s.Pair.Token0,
		Token1:       s.Pair.Token1,
		ShareDenom:   orDefaultString(s.Pool.ShareDenom, "lp"),
		FeeBps:       s.Pool.FeeBps,
		GaugeAddress: orDefault(s.Gauge.Address, "gauge"),
		RewardDenom:  orDefaultString(s.Gauge.RewardDenom, "ureward"),
		RewardRate:   mustAmount(s.Gauge.RewardRate),
		GenesisTime:  genesis,
	})
	if err != nil {
		return nil, err
	}

	amount0, amount1 := s.Pair.Unorient(mustAmount(s.Pool.ReferenceReserve), mustAmount(s.Pool.ManagedReserve))
	if amount0.IsPositive() && amount1.IsPositive() {
		if _, err := st.SeedLiquidity(s.Pool.Provider, amount0, amount1); err != nil {
			return nil, fmt.Errorf("failed to seed pool liquidity: %w", err)
		}
	}

	own0, own1 := s.Pair.Unorient(mustAmount(s.Controller.Reference), mustAmount(s.Controller.Managed))
	if own0.IsPositive() && own1.IsPositive() {
		if _, err := st.SeedLiquidity(controller, own0, own1); err != nil {
			return nil, fmt.Errorf("failed to seed controller liquidity: %w", err)
		}
	}
	if staked := mustAmount(s.Controller.StakedShares); staked.IsPositive() {
		if err := st.Gauge.Deposit(genesis, controller, staked); err != nil {
			return nil, fmt.Errorf("failed to stake controller shares: %w", err)
		}
	}
	if idle := mustAmount(s.Controller.IdleReference); idle.IsPositive() {
		if err := st.Bank.Mint(s.Pair.ReferenceDenom, controller, idle); err != nil {
			return nil, err
		}
	}
	for _, b := range s.Balances {
		if amount := mustAmount(b.Amount); amount.IsPositive() {
			if err := st.Bank.Mint(b.Denom, b.Address, amount); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

// parseAmount parses a non-negative integer in base units. Empty means zero.
func parseAmount(raw string) (sdkmath.Int, error) {
	if raw == "" {
		return sdkmath.ZeroInt(), nil
	}
	v, ok := sdkmath.NewIntFromString(raw)
	if !ok || v.IsNegative() {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

// mustAmount is only called on validated scenarios.
func mustAmount(raw string) sdkmath.Int {
	v, _ := parseAmount(raw)
	return v
}

func orDefault(addr, def types.Address) types.Address {
	if addr == "" {
		return def
	}
	return addr
}

func orDefaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
