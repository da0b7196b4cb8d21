// Package sources provides upstream price sources and their failure taxonomy.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrSourceUnavailable matches every per-source failure except an invalid quote.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrInvalidQuote indicates a parseable response carrying a non-numeric or non-positive price.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
	// ErrRateLimitExceeded indicates that a rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrAPIError indicates an error reported inside an otherwise successful response.
	ErrAPIError = errors.New("API error")
	// ErrInvalidResponse indicates an invalid response from the source.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrInvalidConfig indicates that the source configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownPreset indicates a reference to a preset that was never registered.
	ErrUnknownPreset = errors.New("unknown source preset")
	// ErrInvalidSymbolFormat indicates that the symbol format is invalid.
	ErrInvalidSymbolFormat = errors.New("symbol must be in BASE/QUOTE format")
	// ErrEmptyBaseCurrency indicates that the symbol BASE currency cannot be empty.
	ErrEmptyBaseCurrency = errors.New("symbol BASE currency cannot be empty")
	// ErrEmptyQuoteCurrency indicates that the symbol QUOTE currency cannot be empty.
	ErrEmptyQuoteCurrency = errors.New("symbol QUOTE currency cannot be empty")
)

// Reason classifies why a single source call failed.
type Reason string

const (
	ReasonTimeout      Reason = "timeout"
	ReasonCanceled     Reason = "canceled"
	ReasonNetwork      Reason = "network"
	ReasonStatus       Reason = "status"
	ReasonRateLimited  Reason = "rate_limited"
	ReasonDecode       Reason = "decode"
	ReasonAPIError     Reason = "api_error"
	ReasonInvalidQuote Reason = "invalid_quote"
	ReasonInternal     Reason = "internal"
)

// SourceError is the failure half of a source call.
type SourceError struct {
	Source string
	Reason Reason
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Reason, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is lets callers test against the two top-level failure classes.
func (e *SourceError) Is(target error) bool {
	switch target {
	case ErrSourceUnavailable:
		return e.Reason != ReasonInvalidQuote
	case ErrInvalidQuote:
		return e.Reason == ReasonInvalidQuote
	}
	return false
}

// ReasonOf extracts the failure reason from err.
func ReasonOf(err error) Reason {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Reason
	}
	return classifyTransport(err)
}

// classifyTransport maps an error from http.Client.Do or a body read.
func classifyTransport(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}
	return ReasonNetwork
}
