package types

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairValidate(t *testing.T) {
	valid := Pair{Token0: "uusdc", Token1: "ustable", ReferenceDenom: "uusdc", ManagedDenom: "ustable", ReferenceDecimals: 6, ManagedDecimals: 18}
	require.NoError(t, valid.Validate())

	swapped := valid
	swapped.Token0, swapped.Token1 = valid.Token1, valid.Token0
	require.NoError(t, swapped.Validate())

	cases := []struct {
		name string
		pair Pair
		err  error
	}{
		{"missing managed", Pair{Token0: "a", Token1: "b", ReferenceDenom: "a"}, ErrPairDenomMissing},
		{"same denom", Pair{Token0: "a", Token1: "a", ReferenceDenom: "a", ManagedDenom: "a"}, ErrPairSameDenom},
		{"wrong legs", Pair{Token0: "a", Token1: "c", ReferenceDenom: "a", ManagedDenom: "b"}, ErrPairDenomMissing},
		{"bad decimals", Pair{Token0: "a", Token1: "b", ReferenceDenom: "a", ManagedDenom: "b", ManagedDecimals: 19}, ErrPairBadPrecision},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.pair.Validate(), tc.err)
		})
	}
}

func TestPairOrientation(t *testing.T) {
	refFirst := Pair{Token0: "uusdc", Token1: "ustable", ReferenceDenom: "uusdc", ManagedDenom: "ustable"}
	refSecond := Pair{Token0: "ustable", Token1: "uusdc", ReferenceDenom: "uusdc", ManagedDenom: "ustable"}
	a, b := sdkmath.NewInt(1), sdkmath.NewInt(2)

	ref, managed := refFirst.Orient(a, b)
	assert.Equal(t, "1", ref.String())
	assert.Equal(t, "2", managed.String())

	ref, managed = refSecond.Orient(a, b)
	assert.Equal(t, "2", ref.String())
	assert.Equal(t, "1", managed.String())

	for _, p := range []Pair{refFirst, refSecond} {
		r, m := p.Orient(p.Unorient(a, b))
		assert.Equal(t, "1", r.String())
		assert.Equal(t, "2", m.String())
	}
}

func TestPairRescale(t *testing.T) {
	p := Pair{ReferenceDecimals: 6, ManagedDecimals: 18}
	assert.Equal(t, "1500000000000000000", p.ManagedFromReference(sdkmath.NewInt(1_500_000)).String())
	assert.Equal(t, "1500000", p.ReferenceFromManaged(sdkmath.NewIntWithDecimal(15, 17)).String())
	// sub-unit managed amounts truncate
	assert.True(t, p.ReferenceFromManaged(sdkmath.NewInt(999_999_999_999)).IsZero())

	same := Pair{ReferenceDecimals: 6, ManagedDecimals: 6}
	assert.Equal(t, "42", same.ManagedFromReference(sdkmath.NewInt(42)).String())
	assert.Equal(t, "1000000", Pow10(6).String())
}

func TestBandValidate(t *testing.T) {
	require.NoError(t, Band{Floor: sdkmath.NewInt(99_000_000), Cap: sdkmath.NewInt(101_000_000)}.Validate())

	bad := []Band{
		{},
		{Floor: sdkmath.ZeroInt(), Cap: sdkmath.NewInt(101_000_000)},
		{Floor: TargetPrice, Cap: sdkmath.NewInt(101_000_000)},
		{Floor: sdkmath.NewInt(99_000_000), Cap: TargetPrice},
		{Floor: sdkmath.NewInt(102_000_000), Cap: sdkmath.NewInt(101_000_000)},
	}
	for _, b := range bad {
		assert.ErrorIs(t, b.Validate(), ErrBandOrder)
	}

	params := BandParameters{FloorPrice: sdkmath.NewInt(1), CapPrice: sdkmath.NewInt(2)}
	assert.Equal(t, "1", params.Band().Floor.String())
	assert.Equal(t, "2", params.Band().Cap.String())
}

func TestProposalEncoding(t *testing.T) {
	p := Proposal{Action: ActionMintAndSell, Amount: sdkmath.NewInt(12345), Score: sdkmath.NewInt(7)}
	encoded := p.Encode()
	assert.Equal(t, "MINT_AND_SELL:12345", encoded)

	decoded, err := DecodeProposal(encoded)
	require.NoError(t, err)
	assert.Equal(t, ActionMintAndSell, decoded.Action)
	assert.Equal(t, "12345", decoded.Amount.String())
	assert.True(t, decoded.Score.IsNil(), "scores are not part of the wire form")

	assert.Equal(t, "NO_OP:0", Proposal{Action: ActionNone}.Encode())

	for _, raw := range []string{"", "BUY_AND_BURN", "DANCE:1", "BUY_AND_BURN:-1", "BUY_AND_BURN:x"} {
		_, err := DecodeProposal(raw)
		assert.ErrorIs(t, err, ErrMalformedProposal, raw)
	}
}

func TestProposalClassification(t *testing.T) {
	assert.True(t, Proposal{}.IsEmpty())
	assert.True(t, NoOpProposal(RegimeInBand, sdkmath.ZeroInt()).IsEmpty())
	assert.False(t, Proposal{Action: ActionHarvestReward}.IsEmpty())

	assert.True(t, ActionWithdrawBuyAndBurn.IsRebalance())
	assert.False(t, ActionHarvestReward.IsRebalance())
	assert.False(t, ActionNone.IsRebalance())

	pos := LiquidityPosition{DirectShares: sdkmath.NewInt(3), StakedShares: sdkmath.NewInt(4)}
	assert.Equal(t, "7", pos.Shares().String())
}
