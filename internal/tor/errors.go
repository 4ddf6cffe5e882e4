package tor

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrNotRunning is returned when the embedded Tor daemon is used before
	// Start succeeded or after Stop.
	ErrNotRunning = errors.New("embedded Tor daemon is not running")
)
