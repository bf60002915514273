/*

This file contains the bounded binary-search optimizer that sizes a rebalancing
action. The search relies on the price after the action being monotone in the
amount (in the direction given). For constant-product pools this holds: a bigger
buy always leaves a higher price, a bigger sell a lower one.

*/

package planner

import (
	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/analyzer"
	"github.com/elys-network/pegguard/internal/simulations"
	"github.com/elys-network/pegguard/internal/types"
)

// Direction states how the post-action price moves as the amount grows.
type Direction int

const (
	// Increasing: a larger amount gives a higher price (buy-and-burn, withdraw-buy-and-burn).
	Increasing Direction = iota
	// Decreasing: a larger amount gives a lower price (mint-and-sell).
	Decreasing
)

func (d Direction) String() string {
	if d == Decreasing {
		return "decreasing"
	}
	return "increasing"
}

// Probe evaluates an amount without committing anything.
type Probe func(amount sdkmath.Int) simulations.Outcome

// Result is the best amount found.
type Result struct {
	Amount      sdkmath.Int
	Price       sdkmath.Int
	Score       sdkmath.Int
	Found       bool // false when every probe failed
	Evaluations int
}

// Optimizer finds the amount in [0, max] whose resulting price is closest to the target.
type Optimizer struct {
	Direction Direction
	Target    sdkmath.Int
}

// Optimize evaluates maxAmount first to seed the best result, then binary-searches
// [0, maxAmount], adopting a midpoint only when its score is strictly better.
// A failed probe is treated as "too large" and never adopted.
func (o Optimizer) Optimize(maxAmount sdkmath.Int, probe Probe) Result {
	if maxAmount.IsNil() || maxAmount.IsNegative() {
		maxAmount = sdkmath.ZeroInt()
	}

	var best Result
	consider := func(amount sdkmath.Int, out simulations.Outcome) {
		best.Evaluations++
		if !out.OK() {
			return
		}
		score := o.score(out.Price)
		if !best.Found || score.LT(best.Score) {
			best.Amount, best.Price, best.Score, best.Found = amount, out.Price, score, true
		}
	}

	consider(maxAmount, probe(maxAmount))

	lo, hi := sdkmath.ZeroInt(), maxAmount
	for lo.LT(hi) {
		mid := lo.Add(hi).QuoRaw(2)
		out := probe(mid)
		consider(mid, out)

		switch {
		case !out.OK():
			hi = mid
		case o.overshoots(out.Price):
			hi = mid
		default:
			lo = mid.AddRaw(1)
		}
	}

	if !best.Amount.IsNil() {
		return best
	}
	best.Amount = sdkmath.ZeroInt()
	return best
}

func (o Optimizer) score(price sdkmath.Int) sdkmath.Int {
	if o.Target.IsNil() {
		return analyzer.PegDistance(price)
	}
	return price.Sub(o.Target).Abs()
}

// overshoots reports whether price has moved past the target in the search direction.
func (o Optimizer) overshoots(price sdkmath.Int) bool {
	target := o.Target
	if target.IsNil() {
		target = types.TargetPrice
	}
	if o.Direction == Decreasing {
		return price.LT(target)
	}
	return price.GT(target)
}
