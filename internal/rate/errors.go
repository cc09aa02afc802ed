package rate

import "errors"

var (
	// ErrRateLimited is an exported constant or variable used by the location-gated auth engine.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable is an exported constant or variable used by the location-gated auth engine.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
