package clientmc

import "errors"

var (
	// ErrNoGatewaysAvailable is returned/surfaced when no live gateway
	// exists at selection time.
	ErrNoGatewaysAvailable = errors.New("clientmc: no gateways available")
	// ErrRaceLost wraps the Send error when a connection resolved during
	// selection became invalid before Send could enqueue onto it; it is the
	// cause carried by the rejection of a pinned message.
	ErrRaceLost = errors.New("clientmc: lost race against connection close")
	// ErrNotRunning is returned by operations attempted outside the
	// Running state.
	ErrNotRunning = errors.New("clientmc: message center is not running")
	// ErrInvalidState is returned by UpdateClientId when the requested
	// identity transition isn't Client -> GeoClient.
	ErrInvalidState = errors.New("clientmc: invalid identity transition")
)
