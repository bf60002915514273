package controller

import "errors"

// Error definitions for zero-tolerance error handling
var (
	ErrPreconditionNotMet  = errors.New("precondition not met")
	ErrPostconditionNotMet = errors.New("postcondition not met")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrValueUnchanged      = errors.New("new value equals the current value")
	ErrInvalidPair         = errors.New("pool legs do not match the reference and managed denoms")
	ErrInvalidBand         = errors.New("band must satisfy 0 < floor < target < cap")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrHarvestCooldown     = errors.New("harvest cooldown has not elapsed")
	ErrZeroAmount          = errors.New("amount must be positive")
	ErrUnknownAction       = errors.New("unknown action")
	ErrPaused              = errors.New("controller is paused")
	ErrUnsupportedToken    = errors.New("token is not provided by this controller")
	ErrInvalidOracle       = errors.New("oracle must not be nil")
	ErrInvalidAddress      = errors.New("address must not be empty")
	ErrInvalidConfig       = errors.New("invalid controller configuration")
	ErrBandNotSaved        = errors.New("band change could not be persisted")
)
