// Package session persists one session per account with a strict,
// non-sliding absolute expiry.
//
// The expiry is written exactly once per successful authentication
// and every validity check re-derives the answer from the persisted
// record, so a client reload or reconnect recovers the original
// expiry instead of resetting it.
package session
