package geogate

import (
	"context"

	"github.com/MrEthical07/goGeoGate/geo"
)

// Account is the engine's view of an identity record. The credential
// secret is opaque to this engine and lives behind [IdentityProvider].
//
// HomeLocation is mutated only by a successful step-up verification
// (home relocation) or an explicit re-registration.
type Account struct {
	AccountID     string
	Email         string
	Name          string
	HomeLocation  geo.Coordinate
	SessionExpiry int64 // unix seconds, 0 when no session exists
	CreatedAt     int64
}

// IdentityProvider is the interface callers must implement to
// integrate goGeoGate with their identity backend. It covers account
// creation and credential verification; password hashing and storage
// are the provider's concern.
type IdentityProvider interface {
	// CreateAccount stores a new identity and returns its id.
	// Must return [ErrAccountExists] for a duplicate email.
	CreateAccount(ctx context.Context, email, name, credential string) (string, error)
	// VerifyCredential checks email+credential and returns the
	// account id, or [ErrInvalidCredentials].
	VerifyCredential(ctx context.Context, email, credential string) (string, error)
}

// OTPDelivery carries a one-time code to the account owner through an
// out-of-band channel (typically email). Implementations must honor
// ctx cancellation; the engine bounds every send with a timeout.
type OTPDelivery interface {
	Send(ctx context.Context, destination, code string) error
}

// LoginStatus is the coarse outcome of a login attempt that did not
// fail outright.
type LoginStatus uint8

const (
	// StatusAllowed is an exported constant or variable used by the location-gated auth engine.
	StatusAllowed LoginStatus = iota
	// StatusAllowedVerified is an exported constant or variable used by the location-gated auth engine.
	StatusAllowedVerified
	// StatusStepUpRequired is an exported constant or variable used by the location-gated auth engine.
	StatusStepUpRequired
)

// String describes the string operation and its observable behavior.
func (s LoginStatus) String() string {
	switch s {
	case StatusAllowed:
		return "ALLOW"
	case StatusAllowedVerified:
		return "ALLOW_VERIFIED"
	case StatusStepUpRequired:
		return "STEP_UP"
	default:
		return "UNKNOWN"
	}
}

// LoginResult is returned by [Engine.Login], [Engine.Register] (via
// the account's fresh session) and [Engine.VerifyStepUp].
//
// When StepUpRequired is set, no session exists yet: StepUpToken must
// be echoed back to [Engine.VerifyStepUp] together with the code sent
// to OTPSentTo (masked). Otherwise SessionExpiresAt carries the
// absolute expiry and SessionToken the signed token when token
// issuance is configured.
type LoginResult struct {
	Status  LoginStatus
	Account *Account

	SessionToken     string
	SessionExpiresAt int64

	StepUpRequired bool
	StepUpToken    string
	OTPSentTo      string

	Tier           RiskTier
	DistanceMeters float64 // IP-derived distance; geo.DistanceUnresolved when unknown
}

// SessionStatus is returned by [Engine.GetSession].
type SessionStatus struct {
	Valid     bool
	ExpiresAt int64
}
