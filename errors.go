package geogate

import "errors"

var (
	// ErrAccountExists is an exported constant or variable used by the location-gated auth engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is an exported constant or variable used by the location-gated auth engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials is an exported constant or variable used by the location-gated auth engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is an exported constant or variable used by the location-gated auth engine.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrLocationDenied is an exported constant or variable used by the location-gated auth engine.
	ErrLocationDenied = errors.New("location mismatch denied")
	// ErrLocationUnavailable is an exported constant or variable used by the location-gated auth engine.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrStepUpTokenInvalid is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpTokenInvalid = errors.New("step-up token invalid")
	// ErrStepUpCodeInvalid is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpCodeInvalid = errors.New("step-up code invalid")
	// ErrStepUpExpired is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpExpired = errors.New("step-up challenge expired")
	// ErrStepUpAttemptsExceeded is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpAttemptsExceeded = errors.New("step-up attempts exceeded")
	// ErrStepUpRateLimited is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpRateLimited = errors.New("step-up resend rate limited")
	// ErrStepUpUnavailable is an exported constant or variable used by the location-gated auth engine.
	ErrStepUpUnavailable = errors.New("step-up backend unavailable")
	// ErrDeliveryUnavailable is an exported constant or variable used by the location-gated auth engine.
	ErrDeliveryUnavailable = errors.New("otp delivery unavailable")
	// ErrSessionNotFound is an exported constant or variable used by the location-gated auth engine.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is an exported constant or variable used by the location-gated auth engine.
	ErrSessionExpired = errors.New("session expired")
	// ErrRecordUnavailable is an exported constant or variable used by the location-gated auth engine.
	ErrRecordUnavailable = errors.New("record store unavailable")
	// ErrEngineNotReady is an exported constant or variable used by the location-gated auth engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
