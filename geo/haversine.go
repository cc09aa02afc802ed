package geo

import (
	"errors"
	"math"
)

// EarthRadiusMeters is the spherical earth radius used by the
// haversine formula. City-scale error is acceptable for the risk
// tiers built on top of it.
const EarthRadiusMeters = 6371000.0

// ErrDegenerateCoordinate is returned when a distance cannot be
// computed from the inputs. Callers must treat it as a distinct
// unresolvable state mapped to the highest risk tier, never as a
// distance of zero.
var ErrDegenerateCoordinate = errors.New("degenerate coordinate")

// DistanceMeters computes the great-circle distance between a and b
// using the haversine formula. Pure and deterministic; no I/O.
//
// DistanceMeters may return an error when input validation fails.
func DistanceMeters(a, b Coordinate) (float64, error) {
	if !a.Valid() || !b.Valid() {
		return 0, ErrDegenerateCoordinate
	}

	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	deltaPhi := (b.Lat - a.Lat) * math.Pi / 180
	deltaLambda := (b.Lon - a.Lon) * math.Pi / 180

	sinPhi := math.Sin(deltaPhi / 2)
	sinLambda := math.Sin(deltaLambda / 2)

	h := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c, nil
}
