// Package jwt issues and parses signed session tokens. The token is
// a convenience carrier of the account id and absolute expiry; the
// authoritative expiry check always goes back to the persisted
// session record.
package jwt
