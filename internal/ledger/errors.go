package ledger

import "errors"

var (
	ErrNilAmount             = errors.New("amount is nil")
	ErrNegativeAmount        = errors.New("amount is negative")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientInput     = errors.New("insufficient input amount")
	ErrInsufficientOutput    = errors.New("insufficient output amount")
	ErrInvariantViolated     = errors.New("constant product invariant violated")
	ErrUnknownDenom          = errors.New("denom is not a leg of the pool")
	ErrInsufficientStake     = errors.New("insufficient staked balance")
)
