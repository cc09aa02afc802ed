package geogate

// RiskTier classifies a login attempt by distance between the
// attempt's resolved location and the account's registered home
// location, ordered by increasing severity.
type RiskTier uint8

const (
	// TierAllow is an exported constant or variable used by the location-gated auth engine.
	TierAllow RiskTier = iota
	// TierAllowVerified is an exported constant or variable used by the location-gated auth engine.
	TierAllowVerified
	// TierStepUpLow is an exported constant or variable used by the location-gated auth engine.
	TierStepUpLow
	// TierStepUpMedium is an exported constant or variable used by the location-gated auth engine.
	TierStepUpMedium
	// TierDeny is an exported constant or variable used by the location-gated auth engine.
	TierDeny
)

// String describes the string operation and its observable behavior.
func (t RiskTier) String() string {
	switch t {
	case TierAllow:
		return "ALLOW"
	case TierAllowVerified:
		return "ALLOW_VERIFIED"
	case TierStepUpLow:
		return "STEP_UP_LOW"
	case TierStepUpMedium:
		return "STEP_UP_MEDIUM"
	case TierDeny:
		return "DENY"
	default:
		return "UNKNOWN"
	}
}

// StepUp reports whether the tier requires a secondary OTP
// verification before a session may be finalized.
func (t RiskTier) StepUp() bool {
	return t == TierStepUpLow || t == TierStepUpMedium
}

// RiskInput carries the distances feeding a classification. A value
// below zero means the corresponding distance could not be computed
// (source missing or degenerate); see [geo.DistanceUnresolved].
type RiskInput struct {
	// IPDistanceMeters is the distance between the IP-derived
	// coordinate and the registered home location. Authoritative:
	// the client cannot spoof it as easily as raw GPS.
	IPDistanceMeters float64
	// ClientDistanceMeters is the distance between the
	// client-reported GPS coordinate and the home location.
	ClientDistanceMeters float64
	// IntegrityDistanceMeters is the distance between the client
	// GPS coordinate and the IP-derived coordinate.
	IntegrityDistanceMeters float64
}

// ClassifyRisk maps distances onto a [RiskTier] using a single base
// tolerance T in meters. Stateless pure function, no side effects.
//
// The IP-derived distance is authoritative. Client GPS only ever
// improves the outcome through the ALLOW_VERIFIED rule, and only when
// corroborated by the IP-derived coordinate (integrity distance ≤ T).
// An unresolvable IP distance yields unresolvableTier, which must
// never be an allow tier (enforced by [Config.Validate]).
func ClassifyRisk(in RiskInput, toleranceMeters float64, unresolvableTier RiskTier) RiskTier {
	if in.IPDistanceMeters < 0 {
		return unresolvableTier
	}

	t := toleranceMeters

	if in.IPDistanceMeters <= t {
		return TierAllow
	}
	if in.ClientDistanceMeters >= 0 && in.ClientDistanceMeters <= t &&
		in.IntegrityDistanceMeters >= 0 && in.IntegrityDistanceMeters <= t {
		return TierAllowVerified
	}
	if in.IPDistanceMeters <= 2*t {
		return TierStepUpLow
	}
	if in.IPDistanceMeters <= 10*t {
		return TierStepUpMedium
	}
	return TierDeny
}
