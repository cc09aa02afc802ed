package session

// Session defines a public type used by goGeoGate APIs.
//
// Session instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Session struct {
	AccountID string
	CreatedAt int64
	ExpiresAt int64
}
