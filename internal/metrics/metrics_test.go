package metrics

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestRecorders(t *testing.T) {
	RecordPrices(sdkmath.NewInt(99_500_000), sdkmath.NewInt(100_250_000))
	assert.InDelta(t, 0.995, testutil.ToFloat64(TwapPrice), 1e-9)
	assert.InDelta(t, 1.0025, testutil.ToFloat64(SpotPrice), 1e-9)

	// nil prices leave the gauges untouched
	RecordPrices(sdkmath.Int{}, sdkmath.Int{})
	assert.InDelta(t, 0.995, testutil.ToFloat64(TwapPrice), 1e-9)

	RecordPosition(sdkmath.NewInt(500), sdkmath.NewInt(10), sdkmath.NewInt(20))
	assert.Equal(t, 500.0, testutil.ToFloat64(IdleReference))
	assert.Equal(t, 20.0, testutil.ToFloat64(PositionShares.WithLabelValues("staked")))

	before := testutil.ToFloat64(Executions.WithLabelValues("unknown", OutcomeError))
	RecordExecution("", OutcomeError)
	assert.Equal(t, before+1, testutil.ToFloat64(Executions.WithLabelValues("unknown", OutcomeError)))
}
