// Package fiat converts USD prices into a display currency using live FX
// sources with a constant fallback.
package fiat

import "errors"

var (
	// ErrInvalidCurrency indicates a currency code that is not three letters.
	ErrInvalidCurrency = errors.New("currency must be a 3-letter ISO code")
	// ErrInvalidFallback indicates a missing or non-positive fallback rate.
	ErrInvalidFallback = errors.New("fallback rate must be positive")
	// ErrNoRateSources indicates that no FX source could be built.
	ErrNoRateSources = errors.New("no FX sources configured")
)
