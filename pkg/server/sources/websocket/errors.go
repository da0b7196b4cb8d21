// Package websocket provides streaming price sources fed by exchange WebSocket APIs.
package websocket

import "errors"

var (
	// ErrMaxRetriesExceeded indicates that the maximum connection retries have been exceeded.
	ErrMaxRetriesExceeded = errors.New("max connection retries exceeded")
	// ErrNotConnected indicates that the client is not connected.
	ErrNotConnected = errors.New("not connected")
	// ErrNoStreamData indicates that no valid price has been streamed yet.
	ErrNoStreamData = errors.New("no price received from stream")
	// ErrStreamStale indicates that the last streamed price is older than the allowed age.
	ErrStreamStale = errors.New("streamed price too old")
	// ErrInvalidStreamConfig indicates an unusable stream configuration.
	ErrInvalidStreamConfig = errors.New("invalid stream configuration")
)
