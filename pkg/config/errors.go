// Package config provides configuration loading and validation for btc-pricefeed.
package config

import "errors"

var (
	// ErrNoSourcesConfigured indicates that no price sources are configured.
	ErrNoSourcesConfigured = errors.New("at least one price source must be configured")
	// ErrNoSourcesEnabled indicates that every configured source is disabled.
	ErrNoSourcesEnabled = errors.New("no sources enabled")
	// ErrSourceNameRequired indicates that source name is required.
	ErrSourceNameRequired = errors.New("source name is required")
	// ErrInvalidSourceType indicates that the source type is invalid.
	ErrInvalidSourceType = errors.New("invalid source type")
	// ErrDuplicateSource indicates that two sources share a name.
	ErrDuplicateSource = errors.New("duplicate source name")
	// ErrInvalidPolicy indicates that the aggregation policy is invalid.
	ErrInvalidPolicy = errors.New("invalid policy")
	// ErrInvalidFetchMode indicates that the fetch mode is invalid.
	ErrInvalidFetchMode = errors.New("invalid fetch_mode")
	// ErrInvalidWindow indicates a negative or inconsistent cache window.
	ErrInvalidWindow = errors.New("invalid cache window")
	// ErrInvalidFallbackRate indicates that the FX fallback rate is not a positive number.
	ErrInvalidFallbackRate = errors.New("fx fallback must be a positive number")
	// ErrTLSConfigIncomplete indicates that TLS config is incomplete.
	ErrTLSConfigIncomplete = errors.New("TLS cert and key must be specified when TLS is enabled")
	// ErrTLSCertNotFound indicates that the TLS cert file was not found.
	ErrTLSCertNotFound = errors.New("TLS cert file not found")
	// ErrTLSKeyNotFound indicates that the TLS key file was not found.
	ErrTLSKeyNotFound = errors.New("TLS key file not found")
	// ErrInvalidLogLevel indicates that the log level is invalid.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidLogFormat indicates that the log format is invalid.
	ErrInvalidLogFormat = errors.New("invalid log format")
)
