package planner

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/elys-network/pegguard/internal/metrics"
	"github.com/elys-network/pegguard/internal/simulations"
	"github.com/elys-network/pegguard/internal/types"
)

// Error definitions for zero-tolerance error handling
var (
	ErrMissingSnapshot = errors.New("ledger snapshot is required")
	ErrMissingAction   = errors.New("simulation action is required")
	ErrInvalidPrices   = errors.New("price snapshot contains invalid values")
	ErrInvalidAmounts  = errors.New("available amounts contain invalid values")
)

// Actions are the unguarded rebalancing moves the planner may size.
type Actions struct {
	BuyAndBurn         simulations.Action
	WithdrawBuyAndBurn simulations.Action
	MintAndSell        simulations.Action
}

// Inputs is everything the decision engine reads. Snapshot is never mutated.
type Inputs struct {
	Snapshot *ledger.State
	Prices   types.PriceSnapshot
	Band     types.Band
	Paused   bool

	IdleReference      sdkmath.Int // reference asset held by the controller
	WithdrawableShares sdkmath.Int // direct + gauge-staked LP shares
	SellableManaged    sdkmath.Int // reference reserve expressed in managed units
	HarvestDue         bool

	Actions Actions
}

// DetermineNextAction classifies the market and proposes at most one action.
// It only probes clones of in.Snapshot; nothing live is touched.
func DetermineNextAction(in Inputs) (types.Proposal, error) {
	decisionLogger := logger.GetForComponent("decision_engine")

	if err := validateInputs(in); err != nil {
		decisionLogger.Error().Err(err).Msg("Input validation failed")
		return types.Proposal{}, err
	}

	regime := analyzer.ClassifyRegime(in.Prices, in.Band, in.Paused)
	current := analyzer.PegDistance(in.Prices.Spot)

	decisionLogger.Debug().
		Str("regime", string(regime)).
		Str("spot", in.Prices.Spot.String()).
		Str("twap", in.Prices.Twap.String()).
		Str("currentScore", current.String()).
		Msg("Market classified")

	proposal := types.NoOpProposal(regime, current)
	sim := simulations.NewSimulator(in.Snapshot)

	switch regime {
	case types.RegimeBelowFloor:
		if p, ok := bestImprovement(sim, Increasing, types.ActionBuyAndBurn, in.Actions.BuyAndBurn, in.IdleReference, regime, current); ok {
			proposal = p
		} else if p, ok := bestImprovement(sim, Increasing, types.ActionWithdrawBuyAndBurn, in.Actions.WithdrawBuyAndBurn, in.WithdrawableShares, regime, current); ok {
			proposal = p
		}
	case types.RegimeAboveCap:
		if p, ok := bestImprovement(sim, Decreasing, types.ActionMintAndSell, in.Actions.MintAndSell, in.SellableManaged, regime, current); ok {
			proposal = p
		}
	case types.RegimeInBand:
		// adding liquidity needs both prices at or above the floor; mixed signals below it wait
		if in.IdleReference.IsPositive() && analyzer.IsAtOrAboveFloor(in.Prices, in.Band) {
			proposal = types.Proposal{
				Action:       types.ActionMintAndAddLiquidity,
				Amount:       in.IdleReference,
				Score:        current,
				CurrentScore: current,
				Regime:       regime,
			}
		}
	}

	if proposal.IsEmpty() && in.HarvestDue {
		proposal.Action = types.ActionHarvestReward
	}

	metrics.SimulationProbes.Add(float64(sim.Probes()))
	metrics.Proposals.WithLabelValues(string(proposal.Action)).Inc()

	decisionLogger.Info().
		Str("regime", string(regime)).
		Str("action", string(proposal.Action)).
		Str("amount", proposal.Amount.String()).
		Str("score", proposal.Score.String()).
		Str("currentScore", current.String()).
		Int("probes", sim.Probes()).
		Msg("Next action determined")

	return proposal, nil
}

// bestImprovement sizes action with the optimizer and returns a proposal only if it
// strictly beats the current score.
func bestImprovement(
	sim *simulations.Simulator,
	direction Direction,
	actionType types.ActionType,
	action simulations.Action,
	maxAmount sdkmath.Int,
	regime types.Regime,
	current sdkmath.Int,
) (types.Proposal, bool) {
	if !maxAmount.IsPositive() {
		return types.Proposal{}, false
	}
	opt := Optimizer{Direction: direction, Target: types.TargetPrice}
	result := opt.Optimize(maxAmount, func(amount sdkmath.Int) simulations.Outcome {
		return sim.Simulate(action, amount)
	})

	optLogger := logger.GetForComponent("decision_engine")
	optLogger.Debug().
		Str("action", string(actionType)).
		Str("direction", direction.String()).
		Str("maxAmount", maxAmount.String()).
		Str("bestAmount", result.Amount.String()).
		Bool("found", result.Found).
		Int("evaluations", result.Evaluations).
		Msg("Optimizer finished")

	if !result.Found || !result.Amount.IsPositive() || !result.Score.LT(current) {
		return types.Proposal{}, false
	}
	return types.Proposal{
		Action:       actionType,
		Amount:       result.Amount,
		Score:        result.Score,
		CurrentScore: current,
		Regime:       regime,
	}, true
}

// validateInputs performs validation of all input parameters
func validateInputs(in Inputs) error {
	if in.Snapshot == nil {
		return ErrMissingSnapshot
	}
	if in.Actions.BuyAndBurn == nil || in.Actions.WithdrawBuyAndBurn == nil || in.Actions.MintAndSell == nil {
		return ErrMissingAction
	}
	if in.Prices.Spot.IsNil() || in.Prices.Twap.IsNil() {
		return errors.Join(ErrInvalidPrices, errors.New("spot and twap must be set"))
	}
	if !in.Prices.Spot.IsPositive() || !in.Prices.Twap.IsPositive() {
		return errors.Join(ErrInvalidPrices, fmt.Errorf("spot=%s twap=%s must be positive", in.Prices.Spot, in.Prices.Twap))
	}
	if err := in.Band.Validate(); err != nil {
		return errors.Join(ErrInvalidPrices, err)
	}
	for name, amount := range map[string]sdkmath.Int{
		"idle reference":      in.IdleReference,
		"withdrawable shares": in.WithdrawableShares,
		"sellable managed":    in.SellableManaged,
	} {
		if amount.IsNil() || amount.IsNegative() {
			return errors.Join(ErrInvalidAmounts, fmt.Errorf("%s is nil or negative", name))
		}
	}
	return nil
}
