package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/elys-network/pegguard/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

// PegVolatility summarises how the observed price moved around the peg.
type PegVolatility struct {
	Samples              int     `json:"samples"`
	AnnualizedVolatility float64 `json:"annualized_volatility"` // stddev of log returns scaled by sqrt(annualizationFactor)
	MaxDeviationBps      float64 `json:"max_deviation_bps"`     // largest |price - 1| seen, in basis points
	MeanDeviationBps     float64 `json:"mean_deviation_bps"`
	OutsideBandShare     float64 `json:"outside_band_share"` // fraction of samples outside [floor, cap]
}

// CalculateVolatility returns the annualized volatility of log returns of prices.
// The input is not modified; it is sorted chronologically on a copy.
// annualizationFactor should match the sampling frequency (e.g., 8760 for hourly, 525600 for per-minute).
func CalculateVolatility(prices []types.PriceData, annualizationFactor float64) (float64, error) {
	if len(prices) < 2 {
		return 0, ErrInsufficientData
	}
	sorted := sortedCopy(prices)

	logReturns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1].Price, sorted[i].Price
		// non-positive prices would break math.Log
		if prev <= 0 || cur <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}
	if len(logReturns) == 0 {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(len(logReturns))

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += (r - mean) * (r - mean)
	}
	// population variance
	stdDev := math.Sqrt(sumSqDiff / float64(len(logReturns)))

	return stdDev * math.Sqrt(annualizationFactor), nil
}

// CalculatePegVolatility extends CalculateVolatility with deviation statistics
// against the peg (1.0) and the band given as float prices.
func CalculatePegVolatility(prices []types.PriceData, floorPrice, capPrice, annualizationFactor float64) (PegVolatility, error) {
	vol, err := CalculateVolatility(prices, annualizationFactor)
	if err != nil {
		return PegVolatility{Samples: len(prices)}, err
	}

	report := PegVolatility{Samples: len(prices), AnnualizedVolatility: vol}
	var outside int
	var deviationSum float64
	for _, p := range prices {
		dev := math.Abs(p.Price-1) * 10_000
		deviationSum += dev
		if dev > report.MaxDeviationBps {
			report.MaxDeviationBps = dev
		}
		if p.Price < floorPrice || p.Price > capPrice {
			outside++
		}
	}
	report.MeanDeviationBps = deviationSum / float64(len(prices))
	report.OutsideBandShare = float64(outside) / float64(len(prices))
	return report, nil
}

func sortedCopy(prices []types.PriceData) []types.PriceData {
	sorted := make([]types.PriceData, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
