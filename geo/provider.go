package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProviderUnavailable is an exported constant or variable used by the location engine.
var ErrProviderUnavailable = errors.New("geo provider unavailable")

// Provider looks up a coordinate for a request IP. Implementations
// must honor ctx cancellation; the resolver applies a hard timeout
// per lookup.
type Provider interface {
	Lookup(ctx context.Context, ip string) (Coordinate, error)
	Name() string
}

// defaultCityAccuracyMeters is assumed when a provider does not report
// an accuracy radius. IP geolocation is inherently city-level.
const defaultCityAccuracyMeters = 5000

// IPAPIProvider queries the ip-api.com JSON endpoint.
//
// IPAPIProvider instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

// NewIPAPIProvider describes the newipapiprovider operation and its observable behavior.
//
// NewIPAPIProvider may return an error when input validation, dependency calls, or security checks fail.
// NewIPAPIProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewIPAPIProvider(timeout time.Duration) *IPAPIProvider {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &IPAPIProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: "http://ip-api.com/json",
	}
}

// NewIPAPIProviderWithBaseURL is intended for tests pointing at a
// local stub server.
func NewIPAPIProviderWithBaseURL(baseURL string, timeout time.Duration) *IPAPIProvider {
	p := NewIPAPIProvider(timeout)
	p.baseURL = baseURL
	return p
}

// Name describes the name operation and its observable behavior.
func (p *IPAPIProvider) Name() string { return "ip-api" }

// Lookup describes the lookup operation and its observable behavior.
//
// Lookup may return an error when input validation, dependency calls, or security checks fail.
// Lookup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+ip, nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinate{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var body struct {
		Status string  `json:"status"`
		Lat    float64 `json:"lat"`
		Lon    float64 `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if body.Status != "success" {
		return Coordinate{}, fmt.Errorf("%w: lookup status %q", ErrProviderUnavailable, body.Status)
	}

	return Coordinate{
		Lat:            body.Lat,
		Lon:            body.Lon,
		AccuracyMeters: defaultCityAccuracyMeters,
		Source:         SourceIPGeo,
	}, nil
}

// IPAPICoProvider queries the ipapi.co JSON endpoint. Used as the
// secondary provider in the default fallback chain.
type IPAPICoProvider struct {
	client  *http.Client
	baseURL string
}

// NewIPAPICoProvider describes the newipapicoprovider operation and its observable behavior.
//
// NewIPAPICoProvider may return an error when input validation, dependency calls, or security checks fail.
// NewIPAPICoProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewIPAPICoProvider(timeout time.Duration) *IPAPICoProvider {
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &IPAPICoProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://ipapi.co",
	}
}

// NewIPAPICoProviderWithBaseURL is intended for tests pointing at a
// local stub server.
func NewIPAPICoProviderWithBaseURL(baseURL string, timeout time.Duration) *IPAPICoProvider {
	p := NewIPAPICoProvider(timeout)
	p.baseURL = baseURL
	return p
}

// Name describes the name operation and its observable behavior.
func (p *IPAPICoProvider) Name() string { return "ipapi.co" }

// Lookup describes the lookup operation and its observable behavior.
//
// Lookup may return an error when input validation, dependency calls, or security checks fail.
// Lookup does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *IPAPICoProvider) Lookup(ctx context.Context, ip string) (Coordinate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/"+ip+"/json/", nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Coordinate{}, fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var body struct {
		Error     bool    `json:"error"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Coordinate{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if body.Error {
		return Coordinate{}, fmt.Errorf("%w: lookup rejected", ErrProviderUnavailable)
	}

	return Coordinate{
		Lat:            body.Latitude,
		Lon:            body.Longitude,
		AccuracyMeters: defaultCityAccuracyMeters,
		Source:         SourceIPGeo,
	}, nil
}

// StaticProvider returns a fixed coordinate for every lookup. Useful
// in examples and tests.
type StaticProvider struct {
	Coord Coordinate
	Err   error
}

// Name describes the name operation and its observable behavior.
func (p *StaticProvider) Name() string { return "static" }

// Lookup describes the lookup operation and its observable behavior.
func (p *StaticProvider) Lookup(ctx context.Context, ip string) (Coordinate, error) {
	if p.Err != nil {
		return Coordinate{}, p.Err
	}
	c := p.Coord
	c.Source = SourceIPGeo
	if c.AccuracyMeters == 0 {
		c.AccuracyMeters = defaultCityAccuracyMeters
	}
	return c, nil
}
