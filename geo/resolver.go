package geo

import (
	"context"
	"time"
)

// DistanceUnresolved is the sentinel carried in place of a distance
// that could not be computed.
const DistanceUnresolved = -1.0

// ResolvedLocation is the outcome of a resolution attempt.
//
// When Unknown is set, every lookup source failed and the attempt
// must be treated as maximum risk by the policy layer, never as an
// automatic allow. IntegrityDistanceMeters is the distance between
// the client-reported GPS coordinate and the IP-derived coordinate;
// it is [DistanceUnresolved] when either side is missing.
type ResolvedLocation struct {
	IP                      Coordinate
	Client                  *Coordinate
	IntegrityDistanceMeters float64
	Unknown                 bool
	Provider                string
	Fallback                bool
}

// ResolverConfig bounds the external lookups. A lookup that exceeds
// its timeout is abandoned in favor of the next source, not retried.
type ResolverConfig struct {
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

// Resolver obtains a best-effort location from the configured
// provider chain and reconciles it with an optional client-supplied
// coordinate.
//
// Resolver instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Resolver struct {
	primary   Provider
	secondary Provider
	config    ResolverConfig
}

// NewResolver describes the newresolver operation and its observable behavior.
//
// NewResolver may return an error when input validation, dependency calls, or security checks fail.
// NewResolver does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewResolver(primary, secondary Provider, cfg ResolverConfig) *Resolver {
	if cfg.PrimaryTimeout <= 0 {
		cfg.PrimaryTimeout = 4 * time.Second
	}
	if cfg.SecondaryTimeout <= 0 {
		cfg.SecondaryTimeout = 6 * time.Second
	}
	return &Resolver{
		primary:   primary,
		secondary: secondary,
		config:    cfg,
	}
}

// Resolve looks up the IP-derived coordinate with bounded waits,
// falling back from the primary to the secondary provider, and
// attaches the untrusted client coordinate plus the integrity
// distance between the two. Provider outages degrade to the
// next-best source; when every source fails the result is the
// "unknown" sentinel, never an error.
func (r *Resolver) Resolve(ctx context.Context, ip string, client *Coordinate) ResolvedLocation {
	res := ResolvedLocation{IntegrityDistanceMeters: DistanceUnresolved}

	if client != nil && client.Valid() {
		c := *client
		c.Source = SourceClientGPS
		res.Client = &c
	}

	ipCoord, provider, fallback, ok := r.lookupIP(ctx, ip)
	if !ok {
		res.Unknown = true
		return res
	}
	res.IP = ipCoord
	res.Provider = provider
	res.Fallback = fallback

	if res.Client != nil {
		if d, err := DistanceMeters(*res.Client, res.IP); err == nil {
			res.IntegrityDistanceMeters = d
		}
	}

	return res
}

func (r *Resolver) lookupIP(ctx context.Context, ip string) (Coordinate, string, bool, bool) {
	if r.primary != nil {
		if coord, ok := r.lookupOne(ctx, r.primary, ip, r.config.PrimaryTimeout); ok {
			return coord, r.primary.Name(), false, true
		}
	}
	if r.secondary != nil {
		if coord, ok := r.lookupOne(ctx, r.secondary, ip, r.config.SecondaryTimeout); ok {
			return coord, r.secondary.Name(), true, true
		}
	}
	return Coordinate{}, "", false, false
}

func (r *Resolver) lookupOne(ctx context.Context, p Provider, ip string, timeout time.Duration) (Coordinate, bool) {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	coord, err := p.Lookup(lookupCtx, ip)
	if err != nil || !coord.Valid() {
		return Coordinate{}, false
	}
	coord.Source = SourceIPGeo
	return coord, true
}
