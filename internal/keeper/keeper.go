/*

This file contains the keeper: the external caller that asks the controller for
a proposal, submits it, and records what happened. A proposal that went stale
between derivation and execution (a precondition failure) is re-derived until
MaxAttempts is reached. The keeper never retries anything else.

*/

package keeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/controller"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/metrics"
	"github.com/elys-network/pegguard/internal/state"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/vault"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxAttempts     = 2
	DefaultSchedule        = "@every 1m"
	DefaultObserveSchedule = "@every 10s"
)

var ErrInvalidConfig = errors.New("invalid keeper configuration")

// Observer receives spot observations. *oracle.TWAP implements it.
type Observer interface {
	Record(price sdkmath.Int, timestamp time.Time)
}

// Config holds the configuration for creating a new Keeper
type Config struct {
	Vault           vault.PegVault
	Recorder        state.Recorder
	Address         types.Address // caller identity submitted with every proposal
	MaxAttempts     int           // 0 means DefaultMaxAttempts
	Observer        Observer      // optional; fed by the observation job
	Schedule        string        // cron spec for cycles, empty means DefaultSchedule
	ObserveSchedule string        // cron spec for observations, empty means DefaultObserveSchedule
}

// Keeper drives a PegVault on a schedule.
type Keeper struct {
	logger   zerolog.Logger
	vault    vault.PegVault
	recorder state.Recorder
	address  types.Address
	observer Observer

	maxAttempts     int
	schedule        string
	observeSchedule string

	cycleMu sync.Mutex
	cron    *cron.Cron
}

// New creates a Keeper after validating cfg.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("keeper configuration validation failed: %w", err)
	}

	k := &Keeper{
		logger:          logger.GetForComponent("keeper"),
		vault:           cfg.Vault,
		recorder:        cfg.Recorder,
		address:         cfg.Address,
		observer:        cfg.Observer,
		maxAttempts:     cfg.MaxAttempts,
		schedule:        cfg.Schedule,
		observeSchedule: cfg.ObserveSchedule,
	}
	if k.maxAttempts == 0 {
		k.maxAttempts = DefaultMaxAttempts
	}
	if k.schedule == "" {
		k.schedule = DefaultSchedule
	}
	if k.observeSchedule == "" {
		k.observeSchedule = DefaultObserveSchedule
	}

	k.logger.Info().
		Str("address", string(k.address)).
		Int("maxAttempts", k.maxAttempts).
		Str("schedule", k.schedule).
		Bool("observing", k.observer != nil).
		Msg("Keeper created")
	return k, nil
}

func validateConfig(cfg Config) error {
	var errs []error
	if cfg.Vault == nil {
		errs = append(errs, errors.New("vault cannot be nil"))
	}
	if cfg.Recorder == nil {
		errs = append(errs, errors.New("recorder cannot be nil"))
	}
	if cfg.Address == "" {
		errs = append(errs, errors.New("keeper address cannot be empty"))
	}
	if cfg.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative, got %d", cfg.MaxAttempts))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// Start schedules the cycle and observation jobs. Overlapping runs of the same job are skipped.
func (k *Keeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{k.logger}),
		cron.SkipIfStillRunning(cronLogger{k.logger}),
	))

	if _, err := c.AddFunc(k.schedule, func() {
		if _, err := k.RunCycle(ctx); err != nil {
			k.logger.Warn().Err(err).Msg("Keeper cycle ended with an error")
		}
	}); err != nil {
		return fmt.Errorf("register cycle job %q: %w", k.schedule, err)
	}
	if k.observer != nil {
		if _, err := c.AddFunc(k.observeSchedule, func() {
			if err := k.Observe(); err != nil {
				k.logger.Warn().Err(err).Msg("Spot observation failed")
			}
		}); err != nil {
			return fmt.Errorf("register observation job %q: %w", k.observeSchedule, err)
		}
	}

	k.cron = c
	c.Start()
	k.logger.Info().Str("schedule", k.schedule).Str("observeSchedule", k.observeSchedule).Msg("Keeper scheduler started")
	return nil
}

// Stop stops scheduling and waits for running jobs to finish.
func (k *Keeper) Stop() {
	if k.cron == nil {
		return
	}
	<-k.cron.Stop().Done()
	k.cron = nil
	k.logger.Info().Msg("Keeper scheduler stopped")
}

// Observe reads the spot price and records it with the observer.
func (k *Keeper) Observe() error {
	if k.observer == nil {
		return nil
	}
	at, spot, err := k.vault.SpotPrice()
	if err != nil {
		return fmt.Errorf("failed to read spot price: %w", err)
	}
	k.observer.Record(spot, at)
	k.logger.Debug().Str("spot", spot.String()).Time("at", at).Msg("Recorded spot observation")
	return nil
}

// RunCycle derives and executes at most one proposal and persists a snapshot of
// the cycle. The snapshot is returned even when the cycle fails.
func (k *Keeper) RunCycle(ctx context.Context) (types.CycleSnapshot, error) {
	k.cycleMu.Lock()
	defer k.cycleMu.Unlock()

	cycleStartTime := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Logger()
	cycleLogger.Info().Msg("--- Starting Keeper Cycle ---")

	snapshot := types.CycleSnapshot{
		CycleNumber:  k.cycleNumber(cycleLogger),
		CycleID:      cycleID,
		Timestamp:    cycleStartTime,
		BandParamsID: k.bandParamsID(cycleLogger),
		Keeper:       k.address,
		Proposal:     types.NoOpProposal(types.RegimeInBand, sdkmath.ZeroInt()),
	}

	// --- Step 1: Pre-action state ---
	prices, err := k.vault.PriceSnapshot()
	if err != nil {
		err = fmt.Errorf("failed to read prices: %w", err)
		cycleLogger.Error().Err(err).Msg("Cycle aborted: prices unavailable.")
		return k.finish(cycleLogger, cycleStartTime, snapshot, err)
	}
	snapshot.InitialPrices = prices
	snapshot.InitialPosition = k.vault.Position()
	snapshot.InitialIdleReference = k.vault.IdleReference()

	cycleLogger.Info().
		Int("cycleNumber", snapshot.CycleNumber).
		Str("twap", prices.Twap.String()).
		Str("spot", prices.Spot.String()).
		Str("idleReference", snapshot.InitialIdleReference.String()).
		Msg("Step 1: Market state captured.")

	// --- Step 2: Decide and execute ---
	err = k.decideAndExecute(ctx, cycleLogger, &snapshot)
	return k.finish(cycleLogger, cycleStartTime, snapshot, err)
}

func (k *Keeper) decideAndExecute(ctx context.Context, cycleLogger zerolog.Logger, snapshot *types.CycleSnapshot) error {
	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		snapshot.Attempts = attempt

		proposal, err := k.vault.DetermineNextAction()
		if err != nil {
			cycleLogger.Error().Err(err).Int("attempt", attempt).Msg("Failed to determine next action.")
			return fmt.Errorf("failed to determine next action: %w", err)
		}
		snapshot.Proposal = proposal

		if proposal.IsEmpty() {
			cycleLogger.Info().Str("regime", string(proposal.Regime)).Msg("Step 2: No action required.")
			return nil
		}

		cycleLogger.Info().
			Int("attempt", attempt).
			Str("proposal", proposal.Encode()).
			Str("regime", string(proposal.Regime)).
			Msg("Step 2: Submitting proposal.")

		receipt, err := k.vault.Execute(k.address, proposal)
		snapshot.Receipt = &receipt
		if err == nil {
			return nil
		}
		if errors.Is(err, controller.ErrPreconditionNotMet) && attempt < k.maxAttempts {
			cycleLogger.Warn().Err(err).Int("attempt", attempt).Msg("Proposal went stale, re-deriving.")
			continue
		}
		return err
	}
	return nil
}

// finish fills the post-action state, persists the snapshot and records metrics.
func (k *Keeper) finish(cycleLogger zerolog.Logger, start time.Time, snapshot types.CycleSnapshot, cycleErr error) (types.CycleSnapshot, error) {
	if cycleErr != nil {
		snapshot.ErrorMessage = cycleErr.Error()
	}

	if prices, err := k.vault.PriceSnapshot(); err == nil {
		snapshot.FinalPrices = prices
	} else {
		cycleLogger.Warn().Err(err).Msg("Failed to read final prices")
	}
	snapshot.FinalPosition = k.vault.Position()
	snapshot.FinalIdleReference = k.vault.IdleReference()
	snapshot.PegDistanceChange = pegDistanceChange(snapshot.InitialPrices.Spot, snapshot.FinalPrices.Spot)

	if id, err := k.recorder.SaveCycleSnapshot(snapshot); err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
	} else {
		snapshot.SnapshotID = id
	}

	duration := time.Since(start)
	metrics.KeeperCycles.WithLabelValues(cycleOutcome(cycleErr)).Inc()
	metrics.KeeperCycleDuration.Observe(duration.Seconds())
	metrics.RecordPosition(snapshot.FinalIdleReference, snapshot.FinalPosition.DirectShares, snapshot.FinalPosition.StakedShares)

	event := cycleLogger.Info()
	if cycleErr != nil {
		event = cycleLogger.Warn().Err(cycleErr)
	}
	event.
		Str("action", string(snapshot.Proposal.Action)).
		Int("attempts", snapshot.Attempts).
		Str("pegDistanceChange", snapshot.PegDistanceChange.String()).
		Dur("duration", duration).
		Msg("--- Keeper Cycle Finished ---")
	return snapshot, cycleErr
}

func (k *Keeper) cycleNumber(cycleLogger zerolog.Logger) int {
	n, err := k.recorder.NextCycleNumber()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to get cycle number")
		return 0
	}
	return n
}

func (k *Keeper) bandParamsID(cycleLogger zerolog.Logger) *int64 {
	id, err := k.recorder.ActiveBandParametersID()
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to get active band parameters ID")
		return nil
	}
	return id
}

// pegDistanceChange is positive when the final spot is closer to the peg.
func pegDistanceChange(initial, final sdkmath.Int) sdkmath.Int {
	if initial.IsNil() || final.IsNil() || !initial.IsPositive() || !final.IsPositive() {
		return sdkmath.ZeroInt()
	}
	return analyzer.PegDistance(initial).Sub(analyzer.PegDistance(final))
}

func cycleOutcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, controller.ErrPreconditionNotMet):
		return metrics.OutcomePrecondition
	case errors.Is(err, controller.ErrPostconditionNotMet):
		return metrics.OutcomePostcondition
	default:
		return metrics.OutcomeError
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
