package keeper

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/controller"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/state"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keeperAddress types.Address = "bot"

var errOracleDown = errors.New("oracle down")

// stubVault replays scripted proposals and execution results.
type stubVault struct {
	spot      sdkmath.Int
	afterSpot sdkmath.Int // spot reported once something executed successfully
	priceErr  error

	proposals []types.Proposal
	results   []error

	derived  int
	executed []types.Proposal
	callers  []types.Address
	success  bool
}

func (v *stubVault) DetermineNextAction() (types.Proposal, error) {
	if v.derived >= len(v.proposals) {
		return types.NoOpProposal(types.RegimeInBand, sdkmath.ZeroInt()), nil
	}
	p := v.proposals[v.derived]
	v.derived++
	return p, nil
}

func (v *stubVault) Execute(caller types.Address, proposal types.Proposal) (types.ActionReceipt, error) {
	v.callers = append(v.callers, caller)
	v.executed = append(v.executed, proposal)
	var err error
	if i := len(v.executed) - 1; i < len(v.results) {
		err = v.results[i]
	}
	receipt := types.ActionReceipt{Action: proposal.Action, Amount: proposal.Amount, Success: err == nil}
	if err == nil {
		v.success = true
	}
	return receipt, err
}

func (v *stubVault) currentSpot() sdkmath.Int {
	if v.success && !v.afterSpot.IsNil() {
		return v.afterSpot
	}
	return v.spot
}

func (v *stubVault) PriceSnapshot() (types.PriceSnapshot, error) {
	if v.priceErr != nil {
		return types.PriceSnapshot{}, v.priceErr
	}
	spot := v.currentSpot()
	return types.PriceSnapshot{Twap: spot, Spot: spot}, nil
}

func (v *stubVault) SpotPrice() (time.Time, sdkmath.Int, error) {
	if v.priceErr != nil {
		return time.Time{}, sdkmath.Int{}, v.priceErr
	}
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), v.currentSpot(), nil
}

func (v *stubVault) Position() types.LiquidityPosition {
	return types.LiquidityPosition{
		DirectShares: sdkmath.NewInt(10),
		StakedShares: sdkmath.NewInt(20),
		TotalShares:  sdkmath.NewInt(100),
		Reference:    sdkmath.NewInt(30),
		Managed:      sdkmath.NewInt(30),
	}
}

func (v *stubVault) IdleReference() sdkmath.Int { return sdkmath.NewInt(1000) }

func (v *stubVault) Status() types.ControllerStatus { return types.ControllerStatus{} }

func buy(amount int64) types.Proposal {
	return types.Proposal{
		Action:       types.ActionBuyAndBurn,
		Amount:       sdkmath.NewInt(amount),
		Score:        sdkmath.ZeroInt(),
		CurrentScore: sdkmath.NewInt(500_000),
		Regime:       types.RegimeBelowFloor,
	}
}

func newKeeper(t *testing.T, v *stubVault, rec state.Recorder) *Keeper {
	t.Helper()
	k, err := New(Config{Vault: v, Recorder: rec, Address: keeperAddress})
	require.NoError(t, err)
	return k
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Vault: &stubVault{}, Recorder: state.NewMemoryRecorder(), Address: keeperAddress, MaxAttempts: -1})
	require.ErrorIs(t, err, ErrInvalidConfig)

	k, err := New(Config{Vault: &stubVault{}, Recorder: state.NewMemoryRecorder(), Address: keeperAddress})
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, k.maxAttempts)
	assert.Equal(t, DefaultSchedule, k.schedule)
}

func TestRunCycleExecutesAndPersists(t *testing.T) {
	v := &stubVault{
		spot:      sdkmath.NewInt(99_500_000),
		afterSpot: sdkmath.NewInt(99_950_000),
		proposals: []types.Proposal{buy(1000)},
	}
	rec := state.NewMemoryRecorder()
	k := newKeeper(t, v, rec)

	snapshot, err := k.RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, v.executed, 1)
	assert.Equal(t, keeperAddress, v.callers[0])
	assert.Equal(t, 1, snapshot.CycleNumber)
	assert.Equal(t, 1, snapshot.Attempts)
	assert.NotEmpty(t, snapshot.CycleID)
	assert.Empty(t, snapshot.ErrorMessage)
	require.NotNil(t, snapshot.Receipt)
	assert.True(t, snapshot.Receipt.Success)
	// |0.995 - 1| - |0.9995 - 1| = 0.0045
	assert.Equal(t, "450000", snapshot.PegDistanceChange.String())

	stored, err := rec.LatestCycle()
	require.NoError(t, err)
	assert.Equal(t, snapshot.SnapshotID, stored.SnapshotID)
	assert.Equal(t, types.ActionBuyAndBurn, stored.Proposal.Action)
}

func TestRunCycleRederivesStaleProposal(t *testing.T) {
	stale := fmt.Errorf("%w: spot moved", controller.ErrPreconditionNotMet)
	v := &stubVault{
		spot:      sdkmath.NewInt(99_500_000),
		proposals: []types.Proposal{buy(1000), buy(800)},
		results:   []error{stale, nil},
	}
	k := newKeeper(t, v, state.NewMemoryRecorder())

	snapshot, err := k.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snapshot.Attempts)
	require.Len(t, v.executed, 2)
	assert.Equal(t, "800", snapshot.Proposal.Amount.String())
}

func TestRunCycleGivesUpAfterMaxAttempts(t *testing.T) {
	stale := fmt.Errorf("%w: spot moved", controller.ErrPreconditionNotMet)
	v := &stubVault{
		spot:      sdkmath.NewInt(99_500_000),
		proposals: []types.Proposal{buy(1000), buy(900), buy(800)},
		results:   []error{stale, stale, stale},
	}
	rec := state.NewMemoryRecorder()
	k := newKeeper(t, v, rec)

	snapshot, err := k.RunCycle(context.Background())
	require.ErrorIs(t, err, controller.ErrPreconditionNotMet)
	assert.Equal(t, DefaultMaxAttempts, snapshot.Attempts)
	assert.Len(t, v.executed, DefaultMaxAttempts)
	assert.NotEmpty(t, snapshot.ErrorMessage)
	assert.True(t, snapshot.PegDistanceChange.IsZero())

	stored, err := rec.LatestCycle()
	require.NoError(t, err)
	assert.Equal(t, snapshot.ErrorMessage, stored.ErrorMessage)
}

func TestRunCycleDoesNotRetryPostconditionFailure(t *testing.T) {
	v := &stubVault{
		spot:      sdkmath.NewInt(99_500_000),
		proposals: []types.Proposal{buy(20_000), buy(1000)},
		results:   []error{controller.ErrPostconditionNotMet},
	}
	k := newKeeper(t, v, state.NewMemoryRecorder())

	_, err := k.RunCycle(context.Background())
	require.ErrorIs(t, err, controller.ErrPostconditionNotMet)
	assert.Len(t, v.executed, 1)
}

func TestRunCycleWithNothingToDo(t *testing.T) {
	v := &stubVault{spot: sdkmath.NewInt(100_000_000)}
	k := newKeeper(t, v, state.NewMemoryRecorder())

	snapshot, err := k.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, v.executed)
	assert.True(t, snapshot.Proposal.IsEmpty())
	assert.Nil(t, snapshot.Receipt)
	assert.Equal(t, 1, snapshot.Attempts)
}

func TestRunCycleRecordsPriceFailure(t *testing.T) {
	v := &stubVault{priceErr: errOracleDown}
	rec := state.NewMemoryRecorder()
	k := newKeeper(t, v, rec)

	snapshot, err := k.RunCycle(context.Background())
	require.ErrorIs(t, err, errOracleDown)
	assert.Zero(t, snapshot.Attempts)
	assert.Contains(t, snapshot.ErrorMessage, "oracle down")

	cycles, err := rec.RecentCycles(10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestRunCycleHonoursCancelledContext(t *testing.T) {
	v := &stubVault{spot: sdkmath.NewInt(99_500_000), proposals: []types.Proposal{buy(1000)}}
	k := newKeeper(t, v, state.NewMemoryRecorder())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := k.RunCycle(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, v.executed)
}

func TestCycleNumbersIncrease(t *testing.T) {
	v := &stubVault{spot: sdkmath.NewInt(100_000_000)}
	k := newKeeper(t, v, state.NewMemoryRecorder())

	first, err := k.RunCycle(context.Background())
	require.NoError(t, err)
	second, err := k.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.CycleNumber+1, second.CycleNumber)
	assert.NotEqual(t, first.CycleID, second.CycleID)
}

func TestObserveFeedsTwap(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	twap, err := oracle.NewTWAP(time.Hour, func() time.Time { return now })
	require.NoError(t, err)

	v := &stubVault{spot: sdkmath.NewInt(99_800_000)}
	k, err := New(Config{Vault: v, Recorder: state.NewMemoryRecorder(), Address: keeperAddress, Observer: twap})
	require.NoError(t, err)

	require.NoError(t, k.Observe())
	round, err := twap.LatestTwap()
	require.NoError(t, err)
	assert.Equal(t, "99800000", round.Answer.String())

	v.priceErr = errOracleDown
	assert.ErrorIs(t, k.Observe(), errOracleDown)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	k, err := New(Config{
		Vault:    &stubVault{},
		Recorder: state.NewMemoryRecorder(),
		Address:  keeperAddress,
		Schedule: "not a schedule",
	})
	require.NoError(t, err)
	assert.Error(t, k.Start(context.Background()))
	k.Stop()
}

func TestStartAndStop(t *testing.T) {
	k := newKeeper(t, &stubVault{spot: sdkmath.NewInt(100_000_000)}, state.NewMemoryRecorder())
	require.NoError(t, k.Start(context.Background()))
	k.Stop()
	k.Stop()
}

func TestCycleOutcome(t *testing.T) {
	assert.Equal(t, "success", cycleOutcome(nil))
	assert.Equal(t, "precondition", cycleOutcome(fmt.Errorf("x: %w", controller.ErrPreconditionNotMet)))
	assert.Equal(t, "postcondition", cycleOutcome(controller.ErrPostconditionNotMet))
	assert.Equal(t, "error", cycleOutcome(errOracleDown))
}
