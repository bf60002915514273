package simulations

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newState(t *testing.T) *ledger.State {
	t.Helper()
	st, err := ledger.NewState(ledger.Config{
		PoolAddress:  "pool",
		Token0:       "uusdc",
		Token1:       "ustable",
		ShareDenom:   "lp",
		FeeBps:       5,
		GaugeAddress: "gauge",
		RewardDenom:  "ureward",
		GenesisTime:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = st.SeedLiquidity("lp-provider", sdkmath.NewInt(1_000_000), sdkmath.NewInt(1_000_000))
	require.NoError(t, err)
	require.NoError(t, st.Bank.Mint("uusdc", "trader", sdkmath.NewInt(1_000_000)))
	return st
}

// buyManaged swaps reference for managed and returns reserve1 as a stand-in price.
func buyManaged(st *ledger.State, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsZero() {
		_, r1 := st.Reserves()
		return r1, nil
	}
	if _, err := st.SwapExactIn("trader", "uusdc", amount); err != nil {
		return sdkmath.Int{}, err
	}
	_, r1 := st.Reserves()
	return r1, nil
}

func TestSimulateLeavesSnapshotUntouched(t *testing.T) {
	live := newState(t)
	before := live.Export()

	sim := NewSimulator(live)
	for _, amt := range []int64{0, 10, 5_000, 250_000} {
		out := sim.Simulate(buyManaged, sdkmath.NewInt(amt))
		require.True(t, out.OK(), "amount %d: %v", amt, out.Err)
	}

	assert.Equal(t, before, live.Export())
	assert.Equal(t, 4, sim.Probes())
}

func TestSimulateProbesAreIndependent(t *testing.T) {
	sim := NewSimulator(newState(t))

	first := sim.Simulate(buyManaged, sdkmath.NewInt(50_000))
	second := sim.Simulate(buyManaged, sdkmath.NewInt(50_000))
	require.True(t, first.OK())
	require.True(t, second.OK())
	assert.Equal(t, first.Price, second.Price)
}

func TestSimulateReportsFailureDistinctFromZero(t *testing.T) {
	sim := NewSimulator(newState(t))

	zero := sim.Simulate(func(*ledger.State, sdkmath.Int) (sdkmath.Int, error) {
		return sdkmath.ZeroInt(), nil
	}, sdkmath.NewInt(1))
	assert.True(t, zero.OK())
	assert.True(t, zero.Price.IsZero())

	failed := sim.Simulate(buyManaged, sdkmath.NewInt(5_000_000))
	assert.False(t, failed.OK())
	assert.True(t, errors.Is(failed.Err, ErrProbeFailed))
	assert.True(t, errors.Is(failed.Err, ledger.ErrInsufficientBalance))
	assert.True(t, failed.Price.IsNil())
}

func TestSimulateRecoversPanics(t *testing.T) {
	sim := NewSimulator(newState(t))

	out := sim.Simulate(func(*ledger.State, sdkmath.Int) (sdkmath.Int, error) {
		panic("overflow")
	}, sdkmath.NewInt(1))
	assert.False(t, out.OK())
	assert.ErrorIs(t, out.Err, ErrProbeFailed)
}
