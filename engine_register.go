package geogate

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goGeoGate/geo"
)

// Register creates the account, captures its trusted home location
// from the current attempt and opens a fresh session.
//
// The home location comes from the client GPS coordinate when it is
// corroborated by the IP-derived coordinate (integrity distance within
// tolerance), otherwise from the IP-derived coordinate alone. A
// registration whose location cannot be resolved at all is rejected:
// without a home location every later login would be unclassifiable.
func (e *Engine) Register(ctx context.Context, email, name, credential string, client *geo.Coordinate) (*LoginResult, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}
	email = normalizeEmail(email)
	if email == "" || credential == "" {
		return nil, ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)

	resolved := e.resolveWithMetrics(ctx, ip, client)
	if resolved.Unknown {
		e.metricInc(MetricLocationUnresolvable)
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", TierDeny, ErrLocationUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "location_unresolvable",
			}
		})
		return nil, ErrLocationUnavailable
	}

	home := e.pickHomeLocation(resolved)

	accountID, err := e.identity.CreateAccount(ctx, email, name, credential)
	if err != nil {
		if errors.Is(err, ErrAccountExists) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", TierAllow, ErrAccountExists, nil)
			return nil, ErrAccountExists
		}
		e.emitAudit(ctx, auditEventRegisterFailure, false, "", TierAllow, err, func() map[string]string {
			return map[string]string{
				"reason": "identity_create_failed",
			}
		})
		return nil, err
	}

	now := time.Now().Unix()
	record := &accountRecord{
		Email:        email,
		Name:         name,
		HomeLocation: home,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.accountStore.Save(ctx, accountID, record); err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, accountID, TierAllow, ErrRecordUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "record_save_failed",
			}
		})
		return nil, ErrRecordUnavailable
	}

	sess, token, err := e.finalizeSession(ctx, accountID)
	if err != nil {
		e.emitAudit(ctx, auditEventRegisterFailure, false, accountID, TierAllow, err, func() map[string]string {
			return map[string]string{
				"reason": "session_finalize_failed",
			}
		})
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, accountID, TierAllow, nil, func() map[string]string {
		return map[string]string{
			"home_source": string(home.Source),
		}
	})

	return &LoginResult{
		Status:           StatusAllowed,
		Account:          e.accountView(accountID, record, sess),
		SessionToken:     token,
		SessionExpiresAt: sess.ExpiresAt,
		Tier:             TierAllow,
		DistanceMeters:   0,
	}, nil
}

// pickHomeLocation prefers corroborated client GPS over the coarser
// IP-derived coordinate.
func (e *Engine) pickHomeLocation(resolved geo.ResolvedLocation) geo.Coordinate {
	t := e.config.Policy.ToleranceMeters
	if resolved.Client != nil &&
		resolved.IntegrityDistanceMeters >= 0 &&
		resolved.IntegrityDistanceMeters <= t {
		return *resolved.Client
	}
	return resolved.IP
}

func (e *Engine) resolveWithMetrics(ctx context.Context, ip string, client *geo.Coordinate) geo.ResolvedLocation {
	start := time.Now()
	resolved := e.resolver.Resolve(ctx, ip, client)
	if e.metrics != nil && e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricResolveLatency, time.Since(start))
	}
	if resolved.Fallback {
		e.metricInc(MetricGeoProviderFallback)
	}
	return resolved
}
