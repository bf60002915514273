/*

This file contains the Simulator, which runs candidate actions against private
copies of a frozen ledger snapshot. Probes never touch live state, and a failed
probe is reported through Outcome.Err rather than as a zero price.

*/

package simulations

import (
	"errors"
	"fmt"
	"sync/atomic"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/logger"
	"github.com/rs/zerolog"
)

var ErrProbeFailed = errors.New("simulation probe failed")

// Action applies a candidate move of the given size to st and returns the spot price afterwards.
// Actions run unguarded; guards belong to the executing caller.
type Action func(st *ledger.State, amount sdkmath.Int) (sdkmath.Int, error)

// Outcome is the result of one probe. A failed probe carries Err and no price,
// which keeps it distinct from a probe that legitimately returned zero.
type Outcome struct {
	Amount sdkmath.Int
	Price  sdkmath.Int
	Err    error
}

// OK reports whether the probe succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Simulator answers "what would the price be after this action" against a frozen
// snapshot. Each probe runs on its own copy, so probes never see each other and
// never reach the live ledger.
type Simulator struct {
	snapshot *ledger.State
	probes   atomic.Int64
	logger   zerolog.Logger
}

// NewSimulator freezes a copy of snapshot.
func NewSimulator(snapshot *ledger.State) *Simulator {
	return &Simulator{
		snapshot: snapshot.Clone(),
		logger:   logger.GetForComponent("simulator"),
	}
}

// Simulate runs action with amount on a throwaway copy of the snapshot.
func (s *Simulator) Simulate(action Action, amount sdkmath.Int) (outcome Outcome) {
	s.probes.Add(1)
	outcome.Amount = amount

	defer func() {
		if r := recover(); r != nil {
			outcome.Price = sdkmath.Int{}
			outcome.Err = fmt.Errorf("%w: panic: %v", ErrProbeFailed, r)
		}
		if outcome.Err != nil {
			s.logger.Debug().Str("amount", amount.String()).Err(outcome.Err).Msg("Probe failed")
		}
	}()

	price, err := action(s.snapshot.Clone(), amount)
	if err != nil {
		return Outcome{Amount: amount, Err: fmt.Errorf("%w: %w", ErrProbeFailed, err)}
	}
	return Outcome{Amount: amount, Price: price}
}

// Probes returns how many probes have run.
func (s *Simulator) Probes() int {
	return int(s.probes.Load())
}
