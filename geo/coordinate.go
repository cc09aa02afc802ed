package geo

import "math"

// Source identifies where a coordinate came from.
//
// Source instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Source string

const (
	// SourceIPGeo is an exported constant or variable used by the location engine.
	SourceIPGeo Source = "ip_geo"
	// SourceClientGPS is an exported constant or variable used by the location engine.
	SourceClientGPS Source = "client_gps"
)

// Coordinate is an immutable latitude/longitude pair in decimal degrees
// with an optional accuracy radius in meters and a provenance tag.
//
// Two coordinates are never compared for equality; all comparisons go
// through [DistanceMeters].
type Coordinate struct {
	Lat            float64
	Lon            float64
	AccuracyMeters float64
	Source         Source
}

// Valid reports whether the coordinate carries finite values inside
// the latitude/longitude domain. A zero-value Coordinate at (0,0) with
// no source tag is treated as unset, not as a point off the coast of
// West Africa.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return false
	}
	if c.Lat == 0 && c.Lon == 0 && c.Source == "" {
		return false
	}
	return true
}
