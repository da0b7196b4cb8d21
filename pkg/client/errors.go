// Package client provides an HTTP client for a running price feed server.
package client

import "errors"

var (
	// ErrPriceServerHTTPError indicates that the price server returned an HTTP error.
	ErrPriceServerHTTPError = errors.New("price server returned HTTP error")
	// ErrInvalidBaseURL indicates a base URL that is not absolute http(s).
	ErrInvalidBaseURL = errors.New("base URL must be absolute http(s)")
)
