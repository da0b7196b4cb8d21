package aggregator

import "errors"

var (
	// ErrNoQuotes indicates that no valid quotes were provided.
	ErrNoQuotes = errors.New("no valid quotes provided")
	// ErrUnknownMode indicates that the aggregation mode is unknown.
	ErrUnknownMode = errors.New("unknown aggregation mode")
)
