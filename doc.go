// Package geogate provides a location-gated authentication engine with
// a distance-tiered risk policy, Redis-backed sessions with strict
// absolute expiry, and OTP step-up verification for logins far from an
// account's trusted home location.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// geogate is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, SessionStatus,
// MetricsSnapshot, etc.). Coordinate math and provider lookups live in
// the geo sub-package; rate limiting, code generation, and record
// plumbing live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in
//     its public API.
//   - Store or verify credentials: password handling belongs to the
//     caller's [IdentityProvider].
//   - Treat an unresolvable location as safe. When every geolocation
//     source fails, the policy degrades to its configured unresolvable
//     tier, which is never an allow.
//
// # Trust model
//
// The IP-derived coordinate is authoritative for risk decisions.
// Client-supplied GPS is untrusted input: it can only improve an
// outcome when the IP-derived coordinate corroborates it, and it is
// adopted as the home location only under the same corroboration.
package geogate
