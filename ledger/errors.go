package ledger

import "errors"

// Operation outcomes are discriminated with errors.Is against these
// sentinels. Wrapped messages carry the offending values.
var (
	ErrInvalidAddress        = errors.New("ledger: invalid address")
	ErrInsufficientBalance   = errors.New("ledger: insufficient balance")
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")
	ErrUnauthorized          = errors.New("ledger: unauthorized")
	ErrPaused                = errors.New("ledger: transfers paused")
	ErrExpired               = errors.New("ledger: authorization expired")
	ErrInvalidSignature      = errors.New("ledger: invalid signature")
	ErrConfigOutOfBounds     = errors.New("ledger: config value out of bounds")

	// ErrAmountOverflow aborts any operation whose arithmetic would
	// leave the 256-bit range. No state is touched.
	ErrAmountOverflow = errors.New("ledger: amount overflow")
)
