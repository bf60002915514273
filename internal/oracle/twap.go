package oracle

import (
	"errors"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrNoObservations = errors.New("no price observations available")
	ErrInvalidWindow  = errors.New("TWAP window must be positive")

	// MaxObservations is the maximum number of observations kept in memory.
	MaxObservations = 1000
)

// RoundData is the latest answer of a TWAP feed, in the shape of an aggregator round.
type RoundData struct {
	RoundID         uint64      `json:"round_id"`
	Answer          sdkmath.Int `json:"answer"`
	StartedAt       time.Time   `json:"started_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	AnsweredInRound uint64      `json:"answered_in_round"`
}

// TwapOracle supplies the manipulation-resistant average price.
type TwapOracle interface {
	LatestTwap() (RoundData, error)
}

// PricePoint is a single spot observation.
type PricePoint struct {
	Price     sdkmath.Int `json:"price"`
	Timestamp time.Time   `json:"timestamp"`
}

// TWAP keeps a rolling window of spot observations and averages them by time.
// Every Record call opens a new round.
type TWAP struct {
	mu           sync.RWMutex
	observations []PricePoint
	window       time.Duration
	round        uint64
	clock        func() time.Time
}

// NewTWAP creates a TWAP over window. A nil clock means time.Now.
func NewTWAP(window time.Duration, clock func() time.Time) (*TWAP, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}
	if clock == nil {
		clock = time.Now
	}
	return &TWAP{
		observations: make([]PricePoint, 0, 64),
		window:       window,
		clock:        clock,
	}, nil
}

// Record adds a spot observation. Non-positive prices are ignored.
func (t *TWAP) Record(price sdkmath.Int, timestamp time.Time) {
	if price.IsNil() || !price.IsPositive() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.observations = append(t.observations, PricePoint{Price: price, Timestamp: timestamp})
	t.round++
	t.pruneOldObservations(timestamp)
}

// Window returns the averaging window.
func (t *TWAP) Window() time.Duration {
	return t.window
}

// Observations returns a copy of the observations still held.
func (t *TWAP) Observations() []PricePoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]PricePoint, len(t.observations))
	copy(out, t.observations)
	return out
}

// pruneOldObservations drops observations older than twice the window. Caller holds the lock.
func (t *TWAP) pruneOldObservations(now time.Time) {
	cutoff := now.Add(-2 * t.window)

	startIdx := 0
	for startIdx < len(t.observations) && !t.observations[startIdx].Timestamp.After(cutoff) {
		startIdx++
	}
	// always keep the newest observation so the feed never goes dark
	if startIdx >= len(t.observations) {
		startIdx = len(t.observations) - 1
	}
	if startIdx > 0 {
		t.observations = append(t.observations[:0], t.observations[startIdx:]...)
	}

	if len(t.observations) > MaxObservations {
		excess := len(t.observations) - MaxObservations
		t.observations = append(t.observations[:0], t.observations[excess:]...)
	}
}

// LatestTwap implements TwapOracle, averaging over the window ending now.
func (t *TWAP) LatestTwap() (RoundData, error) {
	return t.TwapAt(t.clock())
}

// TwapAt returns the round computed at a specific point in time.
func (t *TWAP) TwapAt(at time.Time) (RoundData, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.observations) == 0 {
		return RoundData{}, ErrNoObservations
	}

	windowStart := at.Add(-t.window)

	// the price in force at windowStart is the last observation at or before it
	var relevant []PricePoint
	for i, obs := range t.observations {
		if obs.Timestamp.After(at) {
			break
		}
		if obs.Timestamp.After(windowStart) {
			if len(relevant) == 0 && i > 0 {
				relevant = append(relevant, PricePoint{Price: t.observations[i-1].Price, Timestamp: windowStart})
			}
			relevant = append(relevant, obs)
		}
	}

	if len(relevant) == 0 {
		for i := len(t.observations) - 1; i >= 0; i-- {
			if !t.observations[i].Timestamp.After(at) {
				return t.roundData(t.observations[i].Price, windowStart, t.observations[i].Timestamp), nil
			}
		}
		return RoundData{}, ErrNoObservations
	}

	last := relevant[len(relevant)-1]
	if len(relevant) == 1 {
		return t.roundData(last.Price, windowStart, last.Timestamp), nil
	}

	weighted := sdkmath.ZeroInt()
	var total int64
	for i := 0; i < len(relevant); i++ {
		end := at
		if i+1 < len(relevant) {
			end = relevant[i+1].Timestamp
		}
		secs := int64(end.Sub(relevant[i].Timestamp).Seconds())
		if secs > 0 {
			weighted = weighted.Add(relevant[i].Price.MulRaw(secs))
			total += secs
		}
	}
	if total == 0 {
		return t.roundData(last.Price, windowStart, last.Timestamp), nil
	}
	return t.roundData(weighted.QuoRaw(total), windowStart, last.Timestamp), nil
}

func (t *TWAP) roundData(answer sdkmath.Int, startedAt, updatedAt time.Time) RoundData {
	return RoundData{
		RoundID:         t.round,
		Answer:          answer,
		StartedAt:       startedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: t.round,
	}
}
