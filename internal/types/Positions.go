/*

This file contains the types for the controller's liquidity position and the
proposals it hands to the keeper.

*/

package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
)

var ErrMalformedProposal = errors.New("malformed proposal")

// LiquidityPosition is the controller's share of the pool, recomputed from reserves on every read.
type LiquidityPosition struct {
	DirectShares sdkmath.Int `json:"direct_shares"` // LP shares held by the controller itself
	StakedShares sdkmath.Int `json:"staked_shares"` // LP shares deposited in the gauge
	TotalShares  sdkmath.Int `json:"total_shares"`  // Pool-wide share supply
	Reference    sdkmath.Int `json:"reference"`     // Underlying reference amount of (direct + staked)
	Managed      sdkmath.Int `json:"managed"`       // Underlying managed amount of (direct + staked)
}

// Shares returns direct + staked shares.
func (p LiquidityPosition) Shares() sdkmath.Int {
	return p.DirectShares.Add(p.StakedShares)
}

// ActionType names a controller entry point the keeper may invoke.
type ActionType string

const (
	ActionNone                ActionType = "NO_OP"
	ActionBuyAndBurn          ActionType = "BUY_AND_BURN"
	ActionWithdrawBuyAndBurn  ActionType = "WITHDRAW_BUY_AND_BURN"
	ActionMintAndSell         ActionType = "MINT_AND_SELL"
	ActionMintAndAddLiquidity ActionType = "MINT_AND_ADD_LIQUIDITY"
	ActionHarvestReward       ActionType = "HARVEST_REWARD"
)

var knownActions = map[ActionType]bool{
	ActionNone:                true,
	ActionBuyAndBurn:          true,
	ActionWithdrawBuyAndBurn:  true,
	ActionMintAndSell:         true,
	ActionMintAndAddLiquidity: true,
	ActionHarvestReward:       true,
}

// IsRebalance reports whether the action moves price (as opposed to harvesting or doing nothing).
func (a ActionType) IsRebalance() bool {
	switch a {
	case ActionBuyAndBurn, ActionWithdrawBuyAndBurn, ActionMintAndSell, ActionMintAndAddLiquidity:
		return true
	}
	return false
}

// Proposal is the output of the decision engine. Action == ActionNone is the empty proposal.
type Proposal struct {
	Action       ActionType  `json:"action"`
	Amount       sdkmath.Int `json:"amount"`
	Score        sdkmath.Int `json:"score"`         // expected |price - target| after the action
	CurrentScore sdkmath.Int `json:"current_score"` // |spot - target| when the proposal was derived
	Regime       Regime      `json:"regime"`
}

// NoOpProposal is the empty proposal.
func NoOpProposal(regime Regime, currentScore sdkmath.Int) Proposal {
	return Proposal{
		Action:       ActionNone,
		Amount:       sdkmath.ZeroInt(),
		Score:        currentScore,
		CurrentScore: currentScore,
		Regime:       regime,
	}
}

// IsEmpty reports whether the proposal asks for nothing.
func (p Proposal) IsEmpty() bool {
	return p.Action == "" || p.Action == ActionNone
}

// Encode returns the opaque "<action>:<amount>" form handed to external callers.
func (p Proposal) Encode() string {
	amount := p.Amount
	if amount.IsNil() {
		amount = sdkmath.ZeroInt()
	}
	return fmt.Sprintf("%s:%s", p.Action, amount)
}

// DecodeProposal parses the output of Encode. Scores are not part of the wire form.
func DecodeProposal(encoded string) (Proposal, error) {
	action, rawAmount, ok := strings.Cut(encoded, ":")
	if !ok {
		return Proposal{}, fmt.Errorf("%w: %q", ErrMalformedProposal, encoded)
	}
	if !knownActions[ActionType(action)] {
		return Proposal{}, fmt.Errorf("%w: unknown action %q", ErrMalformedProposal, action)
	}
	amount, ok := sdkmath.NewIntFromString(rawAmount)
	if !ok || amount.IsNegative() {
		return Proposal{}, fmt.Errorf("%w: bad amount %q", ErrMalformedProposal, rawAmount)
	}
	return Proposal{Action: ActionType(action), Amount: amount}, nil
}

// ActionReceipt records the outcome of executing a proposal.
type ActionReceipt struct {
	Action     ActionType  `json:"action"`
	Amount     sdkmath.Int `json:"amount"`
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	SpotBefore sdkmath.Int `json:"spot_before"`
	SpotAfter  sdkmath.Int `json:"spot_after"`
}
