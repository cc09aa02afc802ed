package geogate

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGeoGate/geo"
	"github.com/MrEthical07/goGeoGate/internal"
)

// Login verifies the credential, resolves the attempt's location and
// applies the distance policy against the account's home location.
//
// The outcome is one of: an open session (ALLOW or ALLOW_VERIFIED), a
// pending step-up challenge (the result carries StepUpToken and no
// session), or [ErrLocationDenied]. Credential failures and throttle
// hits surface as errors before any location work happens, so the
// resolver is never consulted for an unauthenticated caller.
func (e *Engine) Login(ctx context.Context, email, credential string, client *geo.Coordinate) (*LoginResult, error) {
	if e == nil || e.identity == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", TierDeny, ErrLoginRateLimited, func() map[string]string {
				return map[string]string{
					"identifier": internal.MaskEmail(email),
				}
			})
			return nil, ErrLoginRateLimited
		}
	}

	if credential == "" {
		e.recordLoginFailure(ctx, email, ip, "empty_credential")
		return nil, ErrInvalidCredentials
	}

	accountID, err := e.identity.VerifyCredential(ctx, email, credential)
	if err != nil {
		e.recordLoginFailure(ctx, email, ip, "credential_mismatch")
		return nil, ErrInvalidCredentials
	}
	credential = ""

	record, err := e.accountStore.Get(ctx, accountID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, accountID, TierDeny, ErrAccountNotFound, func() map[string]string {
			return map[string]string{
				"reason": "record_missing",
			}
		})
		return nil, ErrAccountNotFound
	}

	resolved := e.resolveWithMetrics(ctx, ip, client)
	if resolved.Unknown {
		e.metricInc(MetricLocationUnresolvable)
	}

	input := RiskInput{
		IPDistanceMeters:        geo.DistanceUnresolved,
		ClientDistanceMeters:    geo.DistanceUnresolved,
		IntegrityDistanceMeters: resolved.IntegrityDistanceMeters,
	}
	if !resolved.Unknown {
		input.IPDistanceMeters = distanceOrUnresolved(resolved.IP, record.HomeLocation)
	}
	if resolved.Client != nil {
		input.ClientDistanceMeters = distanceOrUnresolved(*resolved.Client, record.HomeLocation)
	}

	tier := ClassifyRisk(input, e.config.Policy.ToleranceMeters, e.config.Policy.UnresolvableTier)

	switch tier {
	case TierAllow, TierAllowVerified:
		return e.finalizeLogin(ctx, email, ip, accountID, record, tier, input.IPDistanceMeters)

	case TierStepUpLow, TierStepUpMedium:
		return e.issueStepUp(ctx, accountID, record, resolved, tier, input.IPDistanceMeters)

	default:
		e.metricInc(MetricLoginDenied)
		e.emitAudit(ctx, auditEventLoginDenied, false, accountID, tier, ErrLocationDenied, func() map[string]string {
			return map[string]string{
				"distance_meters": formatDistance(input.IPDistanceMeters),
			}
		})
		return nil, ErrLocationDenied
	}
}

func (e *Engine) finalizeLogin(
	ctx context.Context,
	email, ip, accountID string,
	record *accountRecord,
	tier RiskTier,
	distance float64,
) (*LoginResult, error) {
	sess, token, err := e.finalizeSession(ctx, accountID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, accountID, tier, err, func() map[string]string {
			return map[string]string{
				"reason": "session_finalize_failed",
			}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		// Best effort: a stale counter only shortens the budget.
		_ = e.rateLimiter.ResetLogin(ctx, email, ip)
	}

	status := StatusAllowed
	if tier == TierAllowVerified {
		status = StatusAllowedVerified
		e.metricInc(MetricLoginAllowedVerified)
	} else {
		e.metricInc(MetricLoginAllowed)
	}
	e.emitAudit(ctx, auditEventLoginAllowed, true, accountID, tier, nil, func() map[string]string {
		return map[string]string{
			"distance_meters": formatDistance(distance),
		}
	})

	return &LoginResult{
		Status:           status,
		Account:          e.accountView(accountID, record, sess),
		SessionToken:     token,
		SessionExpiresAt: sess.ExpiresAt,
		Tier:             tier,
		DistanceMeters:   distance,
	}, nil
}

func (e *Engine) issueStepUp(
	ctx context.Context,
	accountID string,
	record *accountRecord,
	resolved geo.ResolvedLocation,
	tier RiskTier,
	distance float64,
) (*LoginResult, error) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckResend(ctx, accountID); err != nil {
			e.metricInc(MetricStepUpRateLimited)
			e.emitAudit(ctx, auditEventStepUpRateLimited, false, accountID, tier, ErrStepUpRateLimited, nil)
			return nil, ErrStepUpRateLimited
		}
	}

	cid, err := internal.NewChallengeID()
	if err != nil {
		return nil, ErrStepUpUnavailable
	}

	var code string
	switch e.config.StepUp.Strategy {
	case StepUpUUID:
		code = uuid.NewString()
	default:
		code, err = internal.NewOTP(e.config.StepUp.CodeDigits)
		if err != nil {
			return nil, ErrStepUpUnavailable
		}
	}

	if e.delivery != nil {
		sendCtx := ctx
		if e.config.StepUp.SendTimeout > 0 {
			var cancel context.CancelFunc
			sendCtx, cancel = context.WithTimeout(ctx, e.config.StepUp.SendTimeout)
			defer cancel()
		}
		if err := e.delivery.Send(sendCtx, record.Email, code); err != nil {
			e.metricInc(MetricStepUpFailure)
			e.emitAudit(ctx, auditEventStepUpFailure, false, accountID, tier, ErrDeliveryUnavailable, func() map[string]string {
				return map[string]string{
					"reason": "delivery_failed",
				}
			})
			return nil, ErrDeliveryUnavailable
		}
	}

	var candidate geo.Coordinate
	if !resolved.Unknown {
		candidate = e.pickHomeLocation(resolved)
	}

	pending := &pendingVerificationRecord{
		AccountID: accountID,
		CodeHash:  internal.HashCode(code),
		Tier:      tier,
		ExpiresAt: time.Now().Add(e.config.StepUp.ChallengeTTL).Unix(),
		Candidate: candidate,
		HasClient: resolved.Client != nil,
	}
	if err := e.pendingStore.Save(ctx, cid.String(), pending, e.config.StepUp.ChallengeTTL); err != nil {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, accountID, tier, ErrStepUpUnavailable, func() map[string]string {
			return map[string]string{
				"reason": "pending_save_failed",
			}
		})
		return nil, ErrStepUpUnavailable
	}

	if e.rateLimiter != nil {
		_ = e.rateLimiter.MarkResend(ctx, accountID)
	}

	if tier == TierStepUpMedium {
		e.metricInc(MetricLoginStepUpMedium)
		// A login this far from home is suspicious even if the owner
		// completes the step-up; flag it for downstream alerting.
		e.emitAudit(ctx, auditEventLocationAlert, false, accountID, tier, nil, func() map[string]string {
			return map[string]string{
				"distance_meters": formatDistance(distance),
			}
		})
	} else {
		e.metricInc(MetricLoginStepUpLow)
	}
	e.metricInc(MetricStepUpIssued)
	e.emitAudit(ctx, auditEventStepUpIssued, true, accountID, tier, nil, func() map[string]string {
		return map[string]string{
			"distance_meters": formatDistance(distance),
		}
	})

	return &LoginResult{
		Status:         StatusStepUpRequired,
		StepUpRequired: true,
		StepUpToken:    cid.String(),
		OTPSentTo:      internal.MaskEmail(record.Email),
		Tier:           tier,
		DistanceMeters: distance,
	}, nil
}

func (e *Engine) recordLoginFailure(ctx context.Context, email, ip, reason string) {
	if e.rateLimiter != nil {
		if err := e.rateLimiter.IncrementLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
		}
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, "", TierDeny, ErrInvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": internal.MaskEmail(email),
			"reason":     reason,
		}
	})
}

func distanceOrUnresolved(a, b geo.Coordinate) float64 {
	d, err := geo.DistanceMeters(a, b)
	if err != nil {
		return geo.DistanceUnresolved
	}
	return d
}

func formatDistance(d float64) string {
	if d < 0 {
		return "unresolved"
	}
	return strconv.FormatFloat(d, 'f', 0, 64)
}
