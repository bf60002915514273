package controller

import (
	"errors"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/oracle"
	"github.com/elys-network/pegguard/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	self      types.Address = "controller"
	owner     types.Address = "owner"
	module    types.Address = "stability"
	treasury  types.Address = "treasury"
	harvester types.Address = "bot"
	stranger  types.Address = "stranger"
)

var (
	testPair = types.Pair{
		Token0: "uusdc", Token1: "ustable",
		ReferenceDenom: "uusdc", ManagedDenom: "ustable",
		ReferenceDecimals: 6, ManagedDecimals: 6,
	}
	floorPrice = sdkmath.NewInt(99_900_000)
	capPrice   = sdkmath.NewInt(100_100_000)
	genesis    = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubTwap struct {
	answer sdkmath.Int
}

func (s *stubTwap) LatestTwap() (oracle.RoundData, error) {
	return oracle.RoundData{RoundID: 1, Answer: s.answer, AnsweredInRound: 1}, nil
}

type recordingSink struct {
	events []types.Event
}

func (r *recordingSink) SaveEvent(event types.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) last() types.Event {
	return r.events[len(r.events)-1]
}

// market describes the ledger a test starts from.
type market struct {
	reference, managed int64 // provider liquidity
	idle               int64 // reference held by the controller
	ownReference       int64 // liquidity added by the controller itself
	ownManaged         int64
	stake              int64 // controller shares staked in the gauge
	twap               int64 // zero means "same as spot"
}

type env struct {
	clock *testClock
	chain *ledger.Chain
	twap  *stubTwap
	sink  *recordingSink
	ctrl  *Controller
}

func newEnv(t *testing.T, m market) *env {
	t.Helper()
	st, err := ledger.NewState(ledger.Config{
		PoolAddress: "pool", Token0: testPair.Token0, Token1: testPair.Token1, ShareDenom: "lp", FeeBps: 30,
		GaugeAddress: "gauge", RewardDenom: "ureward", RewardRate: sdkmath.NewInt(10), GenesisTime: genesis,
	})
	require.NoError(t, err)
	_, err = st.SeedLiquidity("lp-provider", sdkmath.NewInt(m.reference), sdkmath.NewInt(m.managed))
	require.NoError(t, err)
	if m.ownReference > 0 {
		_, err = st.SeedLiquidity(self, sdkmath.NewInt(m.ownReference), sdkmath.NewInt(m.ownManaged))
		require.NoError(t, err)
	}
	if m.stake > 0 {
		require.NoError(t, st.Gauge.Deposit(genesis, self, sdkmath.NewInt(m.stake)))
	}
	require.NoError(t, st.Bank.Mint(testPair.ReferenceDenom, self, sdkmath.NewInt(m.idle)))

	twap := m.twap
	if twap == 0 {
		r0, r1 := st.Pool.Reserves()
		spot, err := oracle.SpotFromReserves(testPair, r0, r1)
		require.NoError(t, err)
		twap = spot.Int64()
	}

	clock := &testClock{now: genesis}
	e := &env{
		clock: clock,
		chain: ledger.NewChain(st, clock.Now),
		twap:  &stubTwap{answer: sdkmath.NewInt(twap)},
		sink:  &recordingSink{},
	}
	e.ctrl, err = New(e.config())
	require.NoError(t, err)
	return e
}

func (e *env) config() Config {
	return Config{
		Chain:           e.chain,
		Pair:            testPair,
		Address:         self,
		Owner:           owner,
		StabilityModule: module,
		RewardRecipient: treasury,
		Minter:          ledger.BankMinter{Denom: testPair.ManagedDenom},
		SpotOracle:      oracle.NewPoolSpotOracle(testPair),
		TwapOracle:      e.twap,
		Parameters: types.BandParameters{
			FloorPrice:      floorPrice,
			CapPrice:        capPrice,
			HarvestCooldown: time.Hour,
		},
		Harvesters: []types.Address{harvester},
		Events:     e.sink,
	}
}

func (e *env) export() ledger.Export {
	var out ledger.Export
	_ = e.chain.View(func(st *ledger.State) error {
		out = st.Export()
		return nil
	})
	return out
}

func (e *env) balance(denom string, addr types.Address) sdkmath.Int {
	var bal sdkmath.Int
	_ = e.chain.View(func(st *ledger.State) error {
		bal = st.Bank.BalanceOf(denom, addr)
		return nil
	})
	return bal
}

func (e *env) spot(t *testing.T) sdkmath.Int {
	t.Helper()
	prices, err := e.ctrl.PriceSnapshot()
	require.NoError(t, err)
	return prices.Spot
}

// belowFloor: spot ~0.995, both prices under the 0.999 floor.
var belowFloor = market{reference: 1_000_000, managed: 1_005_025, twap: 99_500_000}

// aboveCap: spot ~1.005, both prices over the 1.001 cap.
var aboveCap = market{reference: 1_005_025, managed: 1_000_000, twap: 100_500_000}

// atPeg: spot exactly 1.0.
var atPeg = market{reference: 1_000_000, managed: 1_000_000}

func TestNewValidatesConfig(t *testing.T) {
	e := newEnv(t, atPeg)

	cfg := e.config()
	cfg.Pair.Token0, cfg.Pair.Token1 = cfg.Pair.Token1, cfg.Pair.Token0
	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidPair)

	cfg = e.config()
	cfg.Pair.ManagedDenom = "uatom"
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidPair)

	cfg = e.config()
	cfg.Parameters.FloorPrice = sdkmath.NewInt(100_000_000)
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidBand)

	cfg = e.config()
	cfg.SpotOracle = nil
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidOracle)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg = e.config()
	cfg.TwapOracle = (*stubTwap)(nil)
	_, err = New(cfg)
	assert.ErrorIs(t, err, ErrInvalidOracle)
}

func TestBelowFloorProposesAndExecutesBuyAndBurn(t *testing.T) {
	m := belowFloor
	m.idle = 1000
	e := newEnv(t, m)

	before := e.spot(t)
	require.True(t, before.LT(floorPrice))

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionBuyAndBurn, proposal.Action)
	assert.True(t, proposal.Amount.IsPositive())
	assert.True(t, proposal.Amount.LTE(sdkmath.NewInt(1000)))
	assert.Equal(t, sdkmath.NewInt(1000), proposal.Amount)
	assert.True(t, proposal.Score.LT(proposal.CurrentScore))

	supplyBefore := e.export().Supply[testPair.ManagedDenom]
	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.True(t, receipt.SpotAfter.GT(receipt.SpotBefore))
	assert.True(t, receipt.SpotAfter.LTE(capPrice))
	assert.True(t, e.balance(testPair.ReferenceDenom, self).IsZero())
	assert.NotEqual(t, supplyBefore, e.export().Supply[testPair.ManagedDenom])
	assert.Equal(t, types.EventRebalanced, e.sink.last().Type)
}

func TestBuyAndBurnOvershootRollsBack(t *testing.T) {
	m := belowFloor
	m.idle = 20_000
	e := newEnv(t, m)
	before := e.export()

	receipt, err := e.ctrl.BuyAndBurn(sdkmath.NewInt(20_000))
	require.ErrorIs(t, err, ErrPostconditionNotMet)
	assert.False(t, receipt.Success)
	assert.Equal(t, before, e.export())
	assert.Empty(t, e.sink.events)
}

func TestBuyAndBurnLargeIdleLandsInsideBand(t *testing.T) {
	m := belowFloor
	m.idle = 20_000
	e := newEnv(t, m)

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionBuyAndBurn, proposal.Action)
	assert.True(t, proposal.Amount.LT(sdkmath.NewInt(20_000)))

	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.True(t, receipt.SpotAfter.GTE(floorPrice))
	assert.True(t, receipt.SpotAfter.LTE(capPrice))
}

func TestBuySideImprovesMonotonically(t *testing.T) {
	for _, amount := range []int64{1, 10, 250, 999, 1000} {
		m := belowFloor
		m.idle = 1000
		e := newEnv(t, m)

		receipt, err := e.ctrl.BuyAndBurn(sdkmath.NewInt(amount))
		require.NoError(t, err, "amount %d", amount)
		assert.True(t, receipt.SpotAfter.GT(receipt.SpotBefore), "amount %d", amount)
		assert.True(t, receipt.SpotAfter.LTE(capPrice), "amount %d", amount)
	}
}

func TestAboveCapProposesAndExecutesMintAndSell(t *testing.T) {
	e := newEnv(t, aboveCap)

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionMintAndSell, proposal.Action)
	assert.True(t, proposal.Score.LT(proposal.CurrentScore))

	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.True(t, receipt.SpotAfter.LT(receipt.SpotBefore))
	assert.True(t, receipt.SpotAfter.GTE(floorPrice))
	assert.True(t, e.balance(testPair.ReferenceDenom, self).IsPositive(), "sale proceeds stay idle")
	assert.True(t, e.balance(testPair.ManagedDenom, self).IsZero())
}

func TestSellSideImprovesMonotonically(t *testing.T) {
	for _, amount := range []int64{1, 100, 1000, 2000} {
		e := newEnv(t, aboveCap)
		receipt, err := e.ctrl.MintAndSell(sdkmath.NewInt(amount))
		require.NoError(t, err, "amount %d", amount)
		assert.True(t, receipt.SpotAfter.LT(receipt.SpotBefore), "amount %d", amount)
		assert.True(t, receipt.SpotAfter.GTE(floorPrice), "amount %d", amount)
	}

	e := newEnv(t, aboveCap)
	before := e.export()
	_, err := e.ctrl.MintAndSell(sdkmath.NewInt(100_000))
	require.ErrorIs(t, err, ErrPostconditionNotMet)
	assert.Equal(t, before, e.export())
}

func TestWithdrawBuyAndBurnUnwindsGaugeFirst(t *testing.T) {
	m := belowFloor
	m.ownReference, m.ownManaged = 100_000, 100_502
	m.stake = 50_000
	e := newEnv(t, m)
	direct := e.ctrl.Position().DirectShares

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionWithdrawBuyAndBurn, proposal.Action)
	require.True(t, proposal.Amount.LT(sdkmath.NewInt(50_000)))

	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.True(t, receipt.SpotAfter.GT(receipt.SpotBefore))
	assert.True(t, receipt.SpotAfter.LTE(capPrice))

	pos := e.ctrl.Position()
	assert.Equal(t, sdkmath.NewInt(50_000).Sub(proposal.Amount).String(), pos.StakedShares.String())
	assert.Equal(t, direct.String(), pos.DirectShares.String())
	assert.True(t, e.balance(testPair.ManagedDenom, self).IsZero())
}

func TestAtPegAddsIdleReferenceAsLiquidity(t *testing.T) {
	m := atPeg
	m.idle = 500
	e := newEnv(t, m)
	require.Equal(t, sdkmath.NewInt(100_000_000), e.spot(t))

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	assert.Equal(t, types.ActionMintAndAddLiquidity, proposal.Action)
	assert.Equal(t, sdkmath.NewInt(500), proposal.Amount)

	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	pos := e.ctrl.Position()
	assert.Equal(t, sdkmath.NewInt(500), pos.StakedShares)
	assert.True(t, pos.DirectShares.IsZero())
	assert.True(t, e.ctrl.IdleReference().IsZero())
	assert.True(t, e.balance(testPair.ManagedDenom, self).IsZero())
	assert.Equal(t, sdkmath.NewInt(100_000_000), e.spot(t))
}

func TestRegimeGating(t *testing.T) {
	amounts := []int64{0, 1, 1000}
	tests := []struct {
		name   string
		market market
		call   func(c *Controller, amount sdkmath.Int) (types.ActionReceipt, error)
	}{
		{"buy and burn at peg", atPeg, (*Controller).BuyAndBurn},
		{"withdraw buy and burn at peg", atPeg, (*Controller).WithdrawBuyAndBurn},
		{"mint and sell at peg", atPeg, (*Controller).MintAndSell},
		{"buy and burn above cap", aboveCap, (*Controller).BuyAndBurn},
		{"mint and sell below floor", belowFloor, (*Controller).MintAndSell},
		{"add liquidity below floor", belowFloor, (*Controller).MintAndAddLiquidity},
		{"buy and burn with only spot below floor", market{reference: 1_000_000, managed: 1_005_025, twap: 100_000_000}, (*Controller).BuyAndBurn},
		{"mint and sell with only spot above cap", market{reference: 1_005_025, managed: 1_000_000, twap: 100_000_000}, (*Controller).MintAndSell},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.market
			m.idle = 5000
			e := newEnv(t, m)
			before := e.export()
			for _, amount := range amounts {
				receipt, err := tt.call(e.ctrl, sdkmath.NewInt(amount))
				require.ErrorIs(t, err, ErrPreconditionNotMet, "amount %d", amount)
				assert.False(t, receipt.Success)
			}
			assert.Equal(t, before, e.export())
		})
	}
}

func TestMixedSignalsProposeNothing(t *testing.T) {
	e := newEnv(t, market{reference: 1_000_000, managed: 1_005_025, twap: 100_000_000, idle: 1000})
	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	assert.True(t, proposal.IsEmpty())
	assert.Equal(t, types.RegimeInBand, proposal.Regime)
}

func TestZeroAmountRejectedAfterPrecondition(t *testing.T) {
	m := belowFloor
	m.idle = 1000
	e := newEnv(t, m)
	_, err := e.ctrl.BuyAndBurn(sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrZeroAmount)
	assert.NotErrorIs(t, err, ErrPreconditionNotMet)

	_, err = e.ctrl.BuyAndBurn(sdkmath.NewInt(1001))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestDetermineNextActionLeavesLedgerUntouched(t *testing.T) {
	m := belowFloor
	m.idle = 1000
	m.ownReference, m.ownManaged = 10_000, 10_050
	e := newEnv(t, m)
	before := e.export()

	first, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	second, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)

	assert.Equal(t, first.Encode(), second.Encode())
	assert.Equal(t, before, e.export())
}

func TestExecuteDispatch(t *testing.T) {
	e := newEnv(t, atPeg)

	receipt, err := e.ctrl.Execute(harvester, types.NoOpProposal(types.RegimeInBand, sdkmath.ZeroInt()))
	require.NoError(t, err)
	assert.True(t, receipt.Success)

	_, err = e.ctrl.Execute(harvester, types.Proposal{Action: "TELEPORT", Amount: sdkmath.OneInt()})
	assert.ErrorIs(t, err, ErrUnknownAction)

	decoded, err := types.DecodeProposal("MINT_AND_SELL:10")
	require.NoError(t, err)
	_, err = e.ctrl.Execute(harvester, decoded)
	assert.ErrorIs(t, err, ErrPreconditionNotMet)
}

func TestPausedBlocksRebalancingOnly(t *testing.T) {
	m := belowFloor
	m.idle = 1000
	e := newEnv(t, m)
	require.NoError(t, e.ctrl.SetPaused(owner, true))

	_, err := e.ctrl.BuyAndBurn(sdkmath.NewInt(100))
	assert.ErrorIs(t, err, ErrPaused)
	assert.ErrorIs(t, err, ErrPreconditionNotMet)

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	assert.True(t, proposal.IsEmpty())
	assert.Equal(t, types.RegimePaused, proposal.Regime)

	require.NoError(t, e.ctrl.RequestTokens(module, testPair.ReferenceDenom, sdkmath.NewInt(10)))
}

func TestHarvestReward(t *testing.T) {
	m := atPeg
	m.ownReference, m.ownManaged = 10_000, 10_000
	m.stake = 1000
	e := newEnv(t, m)
	e.clock.Advance(100 * time.Second)

	_, err := e.ctrl.HarvestReward(stranger)
	assert.ErrorIs(t, err, ErrUnauthorized)

	proposal, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionHarvestReward, proposal.Action)

	receipt, err := e.ctrl.Execute(harvester, proposal)
	require.NoError(t, err)
	assert.Equal(t, sdkmath.NewInt(1000), receipt.Amount)
	assert.Equal(t, sdkmath.NewInt(1000), e.balance("ureward", treasury))
	assert.Equal(t, types.EventRewardHarvested, e.sink.last().Type)

	e.clock.Advance(time.Minute)
	_, err = e.ctrl.HarvestReward(owner)
	assert.ErrorIs(t, err, ErrHarvestCooldown)

	proposal, err = e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	assert.True(t, proposal.IsEmpty())

	e.clock.Advance(time.Hour)
	reward, err := e.ctrl.HarvestReward(owner)
	require.NoError(t, err)
	assert.True(t, reward.IsPositive())
}

func TestRequestTokensFromIdle(t *testing.T) {
	m := atPeg
	m.idle = 1000
	e := newEnv(t, m)

	err := e.ctrl.RequestTokens(stranger, testPair.ReferenceDenom, sdkmath.NewInt(10))
	assert.ErrorIs(t, err, ErrUnauthorized)
	err = e.ctrl.RequestTokens(module, "uatom", sdkmath.NewInt(10))
	assert.ErrorIs(t, err, ErrUnsupportedToken)
	err = e.ctrl.RequestTokens(module, testPair.ReferenceDenom, sdkmath.ZeroInt())
	assert.ErrorIs(t, err, ErrZeroAmount)

	require.NoError(t, e.ctrl.RequestTokensFor(module, testPair.ReferenceDenom, sdkmath.NewInt(400), "vault"))
	assert.Equal(t, sdkmath.NewInt(400), e.balance(testPair.ReferenceDenom, "vault"))
	assert.Equal(t, sdkmath.NewInt(600), e.ctrl.IdleReference())
	assert.Equal(t, "0", e.sink.last().Attributes["sharesUnwound"])
}

func TestRequestTokensUnwindsExactShares(t *testing.T) {
	m := atPeg
	m.idle = 100
	m.ownReference, m.ownManaged = 200_000, 200_000
	m.stake = 150_000
	e := newEnv(t, m)

	var total, reserve sdkmath.Int
	_ = e.chain.View(func(st *ledger.State) error {
		total = st.Pool.TotalShares()
		reserve, _ = st.Pool.ReserveOf(testPair.ReferenceDenom)
		return nil
	})
	stakedBefore := e.ctrl.Position().StakedShares

	request := sdkmath.NewInt(10_100)
	require.NoError(t, e.ctrl.RequestTokens(module, testPair.ReferenceDenom, request))
	assert.Equal(t, request, e.balance(testPair.ReferenceDenom, module))

	unwound, ok := sdkmath.NewIntFromString(e.sink.last().Attributes["sharesUnwound"])
	require.True(t, ok)
	shortfall := sdkmath.NewInt(10_000)
	assert.True(t, unwound.Mul(reserve).GTE(shortfall.Mul(total)), "unwound too little")
	assert.True(t, unwound.SubRaw(1).Mul(reserve).LT(shortfall.Mul(total)), "unwound too much")

	pos := e.ctrl.Position()
	assert.True(t, pos.StakedShares.LT(stakedBefore))
	assert.True(t, e.balance(testPair.ManagedDenom, self).IsZero())
}

func TestRequestTokensIsAllOrNothing(t *testing.T) {
	m := atPeg
	m.ownReference, m.ownManaged = 1000, 1000
	e := newEnv(t, m)
	before := e.export()

	err := e.ctrl.RequestTokens(module, testPair.ManagedDenom, sdkmath.NewInt(50_000))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, before, e.export())
}

func TestRequestTokensManagedKeepsIdleReference(t *testing.T) {
	m := belowFloor
	m.idle = 1000
	m.ownReference, m.ownManaged = 200_000, 200_000
	m.stake = 150_000
	e := newEnv(t, m)

	before, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	require.Equal(t, types.ActionBuyAndBurn, before.Action)
	sharesBefore := e.ctrl.Position().Shares()

	request := sdkmath.NewInt(5000)
	require.NoError(t, e.ctrl.RequestTokens(module, testPair.ManagedDenom, request))
	assert.Equal(t, request, e.balance(testPair.ManagedDenom, module))
	assert.Equal(t, sdkmath.NewInt(1000), e.ctrl.IdleReference())
	assert.True(t, e.balance(testPair.ManagedDenom, self).IsZero())
	assert.True(t, e.ctrl.Position().Shares().LTE(sharesBefore))

	after, err := e.ctrl.DetermineNextAction()
	require.NoError(t, err)
	assert.Equal(t, types.ActionBuyAndBurn, after.Action)
}

func TestSetters(t *testing.T) {
	e := newEnv(t, atPeg)
	c := e.ctrl

	assert.ErrorIs(t, c.SetFloorPrice(stranger, sdkmath.NewInt(99_000_000)), ErrUnauthorized)
	assert.ErrorIs(t, c.SetFloorPrice(owner, floorPrice), ErrValueUnchanged)
	assert.ErrorIs(t, c.SetFloorPrice(owner, sdkmath.NewInt(100_000_000)), ErrInvalidBand)
	assert.ErrorIs(t, c.SetFloorPrice(owner, sdkmath.Int{}), ErrInvalidBand)
	require.NoError(t, c.SetFloorPrice(owner, sdkmath.NewInt(99_000_000)))
	assert.Equal(t, sdkmath.NewInt(99_000_000), c.Band().Floor)
	assert.Equal(t, types.EventFloorPriceUpdated, e.sink.last().Type)

	assert.ErrorIs(t, c.SetCapPrice(owner, sdkmath.NewInt(99_999_999)), ErrInvalidBand)
	require.NoError(t, c.SetCapPrice(owner, sdkmath.NewInt(101_000_000)))
	assert.Equal(t, types.EventCapPriceUpdated, e.sink.last().Type)

	assert.ErrorIs(t, c.SetPaused(owner, false), ErrValueUnchanged)
	require.NoError(t, c.SetPaused(owner, true))
	assert.True(t, c.Status().Paused)

	assert.ErrorIs(t, c.SetHarvester(owner, harvester, true), ErrValueUnchanged)
	require.NoError(t, c.SetHarvester(owner, harvester, false))
	_, err := c.HarvestReward(harvester)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.ErrorIs(t, c.SetRewardRecipient(owner, treasury), ErrValueUnchanged)
	assert.ErrorIs(t, c.SetRewardRecipient(owner, ""), ErrInvalidAddress)
	require.NoError(t, c.SetRewardRecipient(owner, "dao"))

	require.NoError(t, c.SetStabilityModule(owner, "module-v2"))
	assert.ErrorIs(t, c.RequestTokens(module, testPair.ReferenceDenom, sdkmath.OneInt()), ErrUnauthorized)

	spot := oracle.NewPoolSpotOracle(testPair)
	assert.ErrorIs(t, c.SetSpotOracle(owner, nil), ErrInvalidOracle)
	require.NoError(t, c.SetSpotOracle(owner, spot))
	assert.ErrorIs(t, c.SetSpotOracle(owner, spot), ErrValueUnchanged)
	assert.ErrorIs(t, c.SetTwapOracle(owner, e.twap), ErrValueUnchanged)
	require.NoError(t, c.SetTwapOracle(owner, &stubTwap{answer: sdkmath.NewInt(100_000_000)}))
	assert.Equal(t, types.EventTwapOracleUpdated, e.sink.last().Type)

	status := c.Status()
	assert.Equal(t, types.Address("dao"), status.RewardRecipient)
	assert.Equal(t, types.Address("module-v2"), status.StabilityModule)
	assert.Empty(t, status.Harvesters)
	assert.Equal(t, types.RegimePaused, status.Regime)
}

type bandRecorder struct {
	bands []types.Band
	err   error
}

func (b *bandRecorder) SaveBand(band types.Band) error {
	if b.err != nil {
		return b.err
	}
	b.bands = append(b.bands, band)
	return nil
}

func TestBandChangesArePersisted(t *testing.T) {
	e := newEnv(t, atPeg)
	store := &bandRecorder{}
	cfg := e.config()
	cfg.BandStore = store
	c, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, c.SetFloorPrice(owner, sdkmath.NewInt(99_000_000)))
	require.NoError(t, c.SetCapPrice(owner, sdkmath.NewInt(101_000_000)))
	require.Len(t, store.bands, 2)
	assert.Equal(t, sdkmath.NewInt(99_000_000), store.bands[1].Floor)
	assert.Equal(t, sdkmath.NewInt(101_000_000), store.bands[1].Cap)

	assert.ErrorIs(t, c.SetFloorPrice(owner, sdkmath.NewInt(100_500_000)), ErrInvalidBand)
	assert.Len(t, store.bands, 2)

	store.err = errors.New("database unavailable")
	events := len(e.sink.events)
	err = c.SetFloorPrice(owner, sdkmath.NewInt(99_500_000))
	assert.ErrorIs(t, err, ErrBandNotSaved)
	assert.Equal(t, sdkmath.NewInt(99_000_000), c.Band().Floor)
	assert.Len(t, e.sink.events, events)
}

// sliceTwap has a non-comparable dynamic type.
type sliceTwap []sdkmath.Int

func (s sliceTwap) LatestTwap() (oracle.RoundData, error) {
	return oracle.RoundData{RoundID: 1, Answer: s[0], AnsweredInRound: 1}, nil
}

func TestOracleSettersHandleUnusualValues(t *testing.T) {
	e := newEnv(t, atPeg)
	c := e.ctrl

	var typedNil *stubTwap
	assert.ErrorIs(t, c.SetTwapOracle(owner, typedNil), ErrInvalidOracle)
	var typedNilSpot *oracle.PoolSpotOracle
	assert.ErrorIs(t, c.SetSpotOracle(owner, typedNilSpot), ErrInvalidOracle)

	twap := sliceTwap{sdkmath.NewInt(100_000_000)}
	assert.NotPanics(t, func() {
		require.NoError(t, c.SetTwapOracle(owner, twap))
		require.NoError(t, c.SetTwapOracle(owner, twap))
	})
	assert.NoError(t, c.SetTwapOracle(owner, e.twap))
	assert.ErrorIs(t, c.SetTwapOracle(owner, e.twap), ErrValueUnchanged)
}

func TestStatusReportsOracleFailure(t *testing.T) {
	e := newEnv(t, atPeg)
	require.NoError(t, e.ctrl.SetTwapOracle(owner, failingTwap{}))

	status := e.ctrl.Status()
	assert.NotEmpty(t, status.PriceError)
	_, err := e.ctrl.DetermineNextAction()
	assert.Error(t, err)
}

type failingTwap struct{}

func (failingTwap) LatestTwap() (oracle.RoundData, error) {
	return oracle.RoundData{}, errors.New("feed offline")
}
