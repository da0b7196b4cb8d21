package feed

import "errors"

var (
	// ErrNoSources indicates that the feed was built without any source.
	ErrNoSources = errors.New("no price sources configured")
	// ErrInvalidFetchMode indicates an unknown fetch mode.
	ErrInvalidFetchMode = errors.New("invalid fetch mode")
	// ErrInvalidWindow indicates a negative freshness or staleness window.
	ErrInvalidWindow = errors.New("invalid cache window")
)
