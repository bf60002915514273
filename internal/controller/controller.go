/*

This file contains the peg controller: the owner-configured state of one managed
pair and the read paths over the ledger. Handlers live in guard.go, token
provisioning in provisioning.go and the owner setters in setters.go.

Locking order is always controller mutex first, then the chain.

*/

package controller

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/metrics"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/planner"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/vault"
	"github.com/google/uuid"
)

var _ vault.PegVault = (*Controller)(nil)

// DefaultHarvestCooldown applies when the parameters leave the cooldown unset.
const DefaultHarvestCooldown = 24 * time.Hour

// EventSink persists controller events. Failures are logged, never returned to the caller.
type EventSink interface {
	SaveEvent(event types.Event) error
}

// BandStore persists owner band changes. A failed save rejects the change.
type BandStore interface {
	SaveBand(band types.Band) error
}

// Config holds the configuration for a Controller
type Config struct {
	Chain           *ledger.Chain
	Pair            types.Pair
	Address         types.Address // account holding the controller's funds
	Owner           types.Address
	StabilityModule types.Address
	RewardRecipient types.Address
	Minter          ledger.Minter
	SpotOracle      oracle.SpotOracle
	TwapOracle      oracle.TwapOracle
	Parameters      types.BandParameters
	Harvesters      []types.Address
	Events          EventSink // optional
	BandStore       BandStore // optional
}

// Controller defends the peg of one managed token.
type Controller struct {
	mu sync.Mutex

	chain   *ledger.Chain
	pair    types.Pair
	address types.Address
	owner   types.Address
	minter  ledger.Minter
	events  EventSink
	bands   BandStore

	stabilityModule types.Address
	rewardRecipient types.Address
	spotOracle      oracle.SpotOracle
	twapOracle      oracle.TwapOracle
	floorPrice      sdkmath.Int
	capPrice        sdkmath.Int
	twapMaxAge      time.Duration
	paused          bool
	harvesters      map[types.Address]bool
	harvestCooldown time.Duration
	lastHarvest     time.Time
}

// New creates a Controller after validating cfg against the live pool.
func New(cfg Config) (*Controller, error) {
	controllerLogger := logger.GetForComponent("peg_controller")

	if err := validateConfig(cfg); err != nil {
		controllerLogger.Error().Err(err).Msg("Controller configuration rejected")
		return nil, err
	}

	cooldown := cfg.Parameters.HarvestCooldown
	if cooldown == 0 {
		cooldown = DefaultHarvestCooldown
	}
	harvesters := make(map[types.Address]bool, len(cfg.Harvesters))
	for _, h := range cfg.Harvesters {
		harvesters[h] = true
	}

	c := &Controller{
		chain:           cfg.Chain,
		pair:            cfg.Pair,
		address:         cfg.Address,
		owner:           cfg.Owner,
		minter:          cfg.Minter,
		events:          cfg.Events,
		bands:           cfg.BandStore,
		stabilityModule: cfg.StabilityModule,
		rewardRecipient: cfg.RewardRecipient,
		spotOracle:      cfg.SpotOracle,
		twapOracle:      cfg.TwapOracle,
		floorPrice:      cfg.Parameters.FloorPrice,
		capPrice:        cfg.Parameters.CapPrice,
		twapMaxAge:      cfg.Parameters.TwapMaxAge,
		harvesters:      harvesters,
		harvestCooldown: cooldown,
	}

	controllerLogger.Info().
		Str("address", string(c.address)).
		Str("owner", string(c.owner)).
		Str("referenceDenom", c.pair.ReferenceDenom).
		Str("managedDenom", c.pair.ManagedDenom).
		Str("floorPrice", c.floorPrice.String()).
		Str("capPrice", c.capPrice.String()).
		Dur("harvestCooldown", c.harvestCooldown).
		Msg("Peg controller created")
	return c, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Chain == nil {
		errs = append(errs, errors.New("chain is required"))
	}
	if cfg.Minter == nil {
		errs = append(errs, errors.New("minter is required"))
	}
	if isNilOracle(cfg.SpotOracle) || isNilOracle(cfg.TwapOracle) {
		errs = append(errs, ErrInvalidOracle)
	}
	if cfg.Address == "" || cfg.Owner == "" || cfg.StabilityModule == "" || cfg.RewardRecipient == "" {
		errs = append(errs, fmt.Errorf("%w: address, owner, stability module and reward recipient", ErrInvalidAddress))
	}
	if cfg.Parameters.HarvestCooldown < 0 || cfg.Parameters.TwapMaxAge < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if err := cfg.Pair.Validate(); err != nil {
		errs = append(errs, errors.Join(ErrInvalidPair, err))
	} else if cfg.Chain != nil {
		_ = cfg.Chain.View(func(st *ledger.State) error {
			if st.Pool.Token0 != cfg.Pair.Token0 || st.Pool.Token1 != cfg.Pair.Token1 {
				errs = append(errs, fmt.Errorf("%w: pool trades %s/%s, pair declares %s/%s",
					ErrInvalidPair, st.Pool.Token0, st.Pool.Token1, cfg.Pair.Token0, cfg.Pair.Token1))
			}
			return nil
		})
	}
	if err := cfg.Parameters.Band().Validate(); err != nil {
		errs = append(errs, errors.Join(ErrInvalidBand, err))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// Address returns the controller account.
func (c *Controller) Address() types.Address {
	return c.address
}

// Pair returns the immutable pairing metadata.
func (c *Controller) Pair() types.Pair {
	return c.pair
}

// Band returns the current floor and cap.
func (c *Controller) Band() types.Band {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.band()
}

func (c *Controller) band() types.Band {
	return types.Band{Floor: c.floorPrice, Cap: c.capPrice}
}

func (c *Controller) feed() oracle.Feed {
	return oracle.Feed{Spot: c.spotOracle, Twap: c.twapOracle, MaxAge: c.twapMaxAge}
}

func (c *Controller) moves() moves {
	return moves{pair: c.pair, self: c.address, minter: c.minter, spot: c.spotOracle}
}

// DetermineNextAction reads the market and proposes at most one action.
// It works on a snapshot of the ledger and never changes it.
func (c *Controller) DetermineNextAction() (types.Proposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.chain.Snapshot()
	prices, err := c.feed().Snapshot(snapshot)
	if err != nil {
		return types.Proposal{}, fmt.Errorf("failed to read prices: %w", err)
	}
	metrics.RecordPrices(prices.Twap, prices.Spot)

	m := c.moves()
	position := m.position(snapshot)
	referenceReserve, _ := c.pair.Orient(snapshot.Reserves())

	return planner.DetermineNextAction(planner.Inputs{
		Snapshot:           snapshot,
		Prices:             prices,
		Band:               c.band(),
		Paused:             c.paused,
		IdleReference:      snapshot.Bank.BalanceOf(c.pair.ReferenceDenom, c.address),
		WithdrawableShares: position.Shares(),
		SellableManaged:    c.pair.ManagedFromReference(referenceReserve),
		HarvestDue:         c.harvestDue(snapshot),
		Actions: planner.Actions{
			BuyAndBurn:         m.buyAndBurn,
			WithdrawBuyAndBurn: m.withdrawBuyAndBurn,
			MintAndSell:        m.mintAndSell,
		},
	})
}

// harvestDue reports whether the cooldown has elapsed and there is a reward to claim.
func (c *Controller) harvestDue(st *ledger.State) bool {
	if !c.lastHarvest.IsZero() && st.Now.Sub(c.lastHarvest) < c.harvestCooldown {
		return false
	}
	return st.Gauge.Earned(st.Now, c.address).IsPositive()
}

// PriceSnapshot reads both oracles against the current ledger.
func (c *Controller) PriceSnapshot() (types.PriceSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.feed().Snapshot(c.chain.Snapshot())
}

// SpotPrice reads only the spot oracle. The keeper feeds it into the TWAP.
func (c *Controller) SpotPrice() (time.Time, sdkmath.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spotOracle.CurrentSpotPrice(c.chain.Snapshot())
}

// Position returns the controller's LP position valued at current reserves.
func (c *Controller) Position() types.LiquidityPosition {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pos types.LiquidityPosition
	_ = c.chain.View(func(st *ledger.State) error {
		pos = c.moves().position(st)
		return nil
	})
	return pos
}

// IdleReference returns the reference asset held outside the pool.
func (c *Controller) IdleReference() sdkmath.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var idle sdkmath.Int
	_ = c.chain.View(func(st *ledger.State) error {
		idle = st.Bank.BalanceOf(c.pair.ReferenceDenom, c.address)
		return nil
	})
	return idle
}

// Status returns a read-only view of configuration and market state.
func (c *Controller) Status() types.ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.chain.Snapshot()
	status := types.ControllerStatus{
		Pair:            c.pair,
		Band:            c.band(),
		Paused:          c.paused,
		Owner:           c.owner,
		StabilityModule: c.stabilityModule,
		RewardRecipient: c.rewardRecipient,
		Harvesters:      c.harvesterList(),
		HarvestCooldown: c.harvestCooldown,
		LastHarvest:     c.lastHarvest,
		Position:        c.moves().position(snapshot),
		IdleReference:   snapshot.Bank.BalanceOf(c.pair.ReferenceDenom, c.address),
		PendingReward:   snapshot.Gauge.Earned(snapshot.Now, c.address),
	}

	prices, err := c.feed().Snapshot(snapshot)
	if err != nil {
		status.PriceError = err.Error()
		status.Regime = types.RegimeInBand
		if c.paused {
			status.Regime = types.RegimePaused
		}
		return status
	}
	status.Prices = prices
	status.Regime = analyzer.ClassifyRegime(prices, c.band(), c.paused)
	return status
}

func (c *Controller) harvesterList() []types.Address {
	list := make([]types.Address, 0, len(c.harvesters))
	for h, enabled := range c.harvesters {
		if enabled {
			list = append(list, h)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// emit records an event. The ledger change it describes is already committed.
func (c *Controller) emit(eventType types.EventType, at time.Time, attributes map[string]string) {
	event := types.Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  at,
		Attributes: attributes,
	}
	metrics.Events.WithLabelValues(string(eventType)).Inc()

	eventLogger := logger.GetForComponent("peg_controller")
	logEvent := eventLogger.Info().Str("event", string(eventType)).Str("eventId", event.ID)
	for k, v := range attributes {
		logEvent = logEvent.Str(k, v)
	}
	logEvent.Msg("Controller event")

	if c.events == nil {
		return
	}
	if err := c.events.SaveEvent(event); err != nil {
		eventLogger.Error().Err(err).Str("event", string(eventType)).Msg("Failed to persist controller event")
	}
}
