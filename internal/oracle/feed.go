package oracle

import (
	"errors"
	"fmt"
	"time"

	"github.com/elys-network/pegguard/internal/ledger"
	"github.com/elys-network/pegguard/internal/types"
)

var ErrStalePrice = errors.New("twap round is stale")

// Feed combines a spot and a TWAP oracle into one price snapshot.
type Feed struct {
	Spot   SpotOracle
	Twap   TwapOracle
	MaxAge time.Duration // zero disables the staleness check
}

// Snapshot reads both oracles against pool.
func (f Feed) Snapshot(pool ledger.PoolReader) (types.PriceSnapshot, error) {
	at, spot, err := f.Spot.CurrentSpotPrice(pool)
	if err != nil {
		return types.PriceSnapshot{}, fmt.Errorf("spot oracle: %w", err)
	}
	round, err := f.Twap.LatestTwap()
	if err != nil {
		return types.PriceSnapshot{}, fmt.Errorf("twap oracle: %w", err)
	}
	if round.Answer.IsNil() || !round.Answer.IsPositive() {
		return types.PriceSnapshot{}, fmt.Errorf("twap oracle: %w", ErrNoObservations)
	}
	if f.MaxAge > 0 && at.Sub(round.UpdatedAt) > f.MaxAge {
		return types.PriceSnapshot{}, fmt.Errorf("%w: updated %s, now %s", ErrStalePrice, round.UpdatedAt.Format(time.RFC3339), at.Format(time.RFC3339))
	}
	return types.PriceSnapshot{Twap: round.Answer, Spot: spot, At: at}, nil
}
