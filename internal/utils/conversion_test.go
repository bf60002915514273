package utils

import (
	"math"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.Int{}, 6)
	assert.ErrorIs(t, err, ErrAmountNil)
	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	assert.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestFloat64ToSDKInt(t *testing.T) {
	v, err := Float64ToSDKInt(1.25, 6)
	require.NoError(t, err)
	assert.Equal(t, "1250000", v.String())

	v, err = Float64ToSDKInt(0, 6)
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = Float64ToSDKInt(math.NaN(), 6)
	assert.ErrorIs(t, err, ErrNotFinite)
	_, err = Float64ToSDKInt(-1, 6)
	assert.ErrorIs(t, err, ErrAmountNegative)
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr error
	}{
		{raw: "1", want: "100000000"},
		{raw: "0.999", want: "99900000"},
		{raw: " 1.001 ", want: "100100000"},
		{raw: "0.00000001", want: "1"},
		{raw: "0.000000001", wantErr: ErrTooPrecise},
		{raw: "-0.5", wantErr: ErrAmountNegative},
		{raw: "", wantErr: ErrConversionFailed},
		{raw: "abc", wantErr: ErrConversionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePrice(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestPriceToFloat64(t *testing.T) {
	f, err := PriceToFloat64(sdkmath.NewInt(99_900_000))
	require.NoError(t, err)
	assert.InDelta(t, 0.999, f, 1e-12)
}
