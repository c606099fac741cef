package model

import (
	"errors"

	"github.com/atmx/binary-amm/internal/fixedpoint"
)

// Sentinel errors. Callers compare with errors.Is; operations wrap them with
// detail via fmt.Errorf("%w: ...").

// Authorization and input.
var (
	ErrUnauthorized     = errors.New("amm: unauthorized")
	ErrInvalidParameter = errors.New("amm: invalid parameter")
)

// Market state machine.
var (
	ErrMarketNotFound        = errors.New("amm: market not found")
	ErrMarketExists          = errors.New("amm: market already exists")
	ErrMarketAlreadyResolved = errors.New("amm: market already resolved")
	ErrMarketNotYetExpired   = errors.New("amm: market has not reached its resolution time")
	ErrMarketExpired         = errors.New("amm: market is past its resolution time")
	ErrMarketNotResolved     = errors.New("amm: market not resolved")
)

// Pricing.
var (
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrSlippageExceeded      = errors.New("amm: slippage exceeded")
	ErrExposureLimitExceeded = errors.New("amm: exposure limit exceeded")
)

// Arithmetic guards, shared with the fixedpoint package so errors.Is matches
// either name.
var (
	ErrOverflow     = fixedpoint.ErrOverflow
	ErrDivideByZero = fixedpoint.ErrDivideByZero
)

// Settlement and custody.
var (
	ErrAlreadyClaimed    = errors.New("amm: position already claimed")
	ErrNoWinningShares   = errors.New("amm: no winning shares")
	ErrInsufficientFunds = errors.New("amm: insufficient funds")
	ErrNoRemainingFunds  = errors.New("amm: no remaining funds")
	ErrClaimWindowOpen   = errors.New("amm: claim window still open")
	ErrPositionNotFound  = errors.New("amm: position not found")
	ErrConfigNotFound    = errors.New("amm: market config not initialized")
)
