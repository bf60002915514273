/*

This file contains the Prometheus collectors of the controller and keeper.
Collectors are package level and registered explicitly through Register, so
binaries choose the registry and tests can use a private one.

*/

package metrics

import (
	"errors"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/elys-network/pegguard/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pegguard"

// Execution outcomes.
const (
	OutcomeSuccess       = "success"
	OutcomePrecondition  = "precondition"
	OutcomePostcondition = "postcondition"
	OutcomeError         = "error"
)

var (
	Proposals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "planner",
		Name:      "proposals_total",
		Help:      "Proposals returned by the decision engine, by action.",
	}, []string{"action"})

	SimulationProbes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "planner",
		Name:      "simulation_probes_total",
		Help:      "Dry-run probes evaluated by the optimizer.",
	})

	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "executions_total",
		Help:      "Controller handler invocations, by action and outcome.",
	}, []string{"action", "outcome"})

	Events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "events_total",
		Help:      "Controller events emitted, by type.",
	}, []string{"type"})

	SpotPrice = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "spot_price",
		Help:      "Last observed pool spot price of the managed token (1.0 = peg).",
	})

	TwapPrice = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "market",
		Name:      "twap_price",
		Help:      "Last observed TWAP of the managed token (1.0 = peg).",
	})

	IdleReference = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "idle_reference",
		Help:      "Reference asset held by the controller outside the pool, in base units.",
	})

	PositionShares = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "controller",
		Name:      "position_shares",
		Help:      "LP shares owned by the controller, by placement.",
	}, []string{"placement"})

	KeeperCycles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "keeper",
		Name:      "cycles_total",
		Help:      "Keeper cycles run, by outcome.",
	}, []string{"outcome"})

	KeeperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "keeper",
		Name:      "cycle_duration_seconds",
		Help:      "Wall time of a keeper cycle.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
	})
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		Proposals,
		SimulationProbes,
		Executions,
		Events,
		SpotPrice,
		TwapPrice,
		IdleReference,
		PositionShares,
		KeeperCycles,
		KeeperCycleDuration,
	}
}

// Register adds every collector to reg. Collectors already present are skipped,
// so it is safe to call more than once against the same registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// RecordExecution counts one handler invocation.
func RecordExecution(action, outcome string) {
	if action == "" {
		action = "unknown"
	}
	Executions.WithLabelValues(action, outcome).Inc()
}

// RecordPrices publishes a price pair given with the 8-decimal fixed point.
func RecordPrices(twap, spot sdkmath.Int) {
	if !twap.IsNil() {
		TwapPrice.Set(fixedToFloat(twap))
	}
	if !spot.IsNil() {
		SpotPrice.Set(fixedToFloat(spot))
	}
}

// RecordPosition publishes the controller holdings.
func RecordPosition(idleReference, directShares, stakedShares sdkmath.Int) {
	if !idleReference.IsNil() {
		IdleReference.Set(intToFloat(idleReference, 0))
	}
	if !directShares.IsNil() {
		PositionShares.WithLabelValues("direct").Set(intToFloat(directShares, 0))
	}
	if !stakedShares.IsNil() {
		PositionShares.WithLabelValues("staked").Set(intToFloat(stakedShares, 0))
	}
}

func fixedToFloat(price sdkmath.Int) float64 {
	return intToFloat(price, types.PricePrecision)
}

// intToFloat drops values the conversion rejects (negative or non-finite) to zero.
func intToFloat(amount sdkmath.Int, precision int) float64 {
	f, err := utils.SDKIntToFloat64(amount, precision)
	if err != nil {
		return 0
	}
	return f
}
