// Package geo resolves a best-effort location for an authentication
// attempt and measures great-circle distances between coordinates.
//
// Two independent signals feed the resolver: a server-side IP
// geolocation lookup (authoritative, city-level accuracy) and an
// optional client-supplied GPS coordinate (higher precision but
// spoofable). The resolver never rejects data; it attaches an
// integrity distance between the two signals and leaves the trust
// decision to the policy layer.
package geo
