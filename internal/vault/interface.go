package vault

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/pegguard/internal/types"
)

// PegVault defines what the keeper and the API need from a peg controller.
// This interface abstracts away the specific implementation details,
// allowing the keeper to be driven against a stub in tests.
type PegVault interface {
	// DetermineNextAction returns the proposal for the current market without changing anything.
	DetermineNextAction() (types.Proposal, error)

	// Execute submits a proposal on behalf of caller. A stale proposal fails with a precondition error.
	Execute(caller types.Address, proposal types.Proposal) (types.ActionReceipt, error)

	// PriceSnapshot returns the current TWAP and spot prices.
	PriceSnapshot() (types.PriceSnapshot, error)

	// SpotPrice returns the instantaneous pool price and the time it was read.
	SpotPrice() (time.Time, sdkmath.Int, error)

	// Position returns the LP position valued at current reserves.
	Position() types.LiquidityPosition

	// IdleReference returns the reference asset held outside the pool.
	IdleReference() sdkmath.Int

	// Status returns configuration and market state for display.
	Status() types.ControllerStatus
}
