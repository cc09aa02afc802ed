package geogate

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGeoGate/internal"
)

// VerifyStepUp consumes a pending challenge. On a matching code the
// account gets a fresh session and, when the attempt carried a usable
// candidate location, its home location moves there so the next login
// from the same place classifies as ALLOW.
//
// A challenge is single use: success, attempt exhaustion and expiry
// all destroy it, and issuing a new challenge for the same account
// revokes the old one. Replaying a consumed or superseded token fails
// with [ErrStepUpTokenInvalid].
func (e *Engine) VerifyStepUp(ctx context.Context, stepUpToken, code string) (*LoginResult, error) {
	if e == nil || e.pendingStore == nil {
		return nil, ErrEngineNotReady
	}

	if _, err := internal.ParseChallengeID(stepUpToken); err != nil {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, "", TierDeny, ErrStepUpTokenInvalid, func() map[string]string {
			return map[string]string{
				"reason": "malformed_token",
			}
		})
		return nil, ErrStepUpTokenInvalid
	}

	record, err := e.pendingStore.Consume(ctx, stepUpToken, internal.HashCode(code), e.config.StepUp.MaxAttempts)
	if err != nil {
		return nil, e.mapStepUpError(ctx, err)
	}

	if record.Candidate.Valid() {
		if err := e.accountStore.UpdateHomeLocation(ctx, record.AccountID, record.Candidate); err != nil {
			e.metricInc(MetricStepUpFailure)
			e.emitAudit(ctx, auditEventStepUpFailure, false, record.AccountID, record.Tier, ErrRecordUnavailable, func() map[string]string {
				return map[string]string{
					"reason": "home_update_failed",
				}
			})
			return nil, ErrRecordUnavailable
		}
		e.metricInc(MetricHomeRelocated)
		e.emitAudit(ctx, auditEventHomeRelocated, true, record.AccountID, record.Tier, nil, func() map[string]string {
			return map[string]string{
				"source": string(record.Candidate.Source),
			}
		})
	}

	acct, err := e.accountStore.Get(ctx, record.AccountID)
	if err != nil {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, record.AccountID, record.Tier, ErrAccountNotFound, func() map[string]string {
			return map[string]string{
				"reason": "record_missing",
			}
		})
		return nil, ErrAccountNotFound
	}

	sess, token, err := e.finalizeSession(ctx, record.AccountID)
	if err != nil {
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, record.AccountID, record.Tier, err, func() map[string]string {
			return map[string]string{
				"reason": "session_finalize_failed",
			}
		})
		return nil, err
	}

	if e.rateLimiter != nil {
		_ = e.rateLimiter.ResetLogin(ctx, acct.Email, clientIPFromContext(ctx))
	}

	e.metricInc(MetricStepUpSuccess)
	e.emitAudit(ctx, auditEventStepUpSuccess, true, record.AccountID, record.Tier, nil, nil)

	return &LoginResult{
		Status:           StatusAllowed,
		Account:          e.accountView(record.AccountID, acct, sess),
		SessionToken:     token,
		SessionExpiresAt: sess.ExpiresAt,
		Tier:             record.Tier,
	}, nil
}

// CancelStepUp abandons a pending challenge without verifying it.
// Unknown or already-consumed tokens are not an error.
func (e *Engine) CancelStepUp(ctx context.Context, stepUpToken string) error {
	if e == nil || e.pendingStore == nil {
		return ErrEngineNotReady
	}
	if _, err := internal.ParseChallengeID(stepUpToken); err != nil {
		return ErrStepUpTokenInvalid
	}

	if err := e.pendingStore.Cancel(ctx, stepUpToken); err != nil {
		return ErrStepUpUnavailable
	}
	return nil
}

func (e *Engine) mapStepUpError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, errPendingNotFound), errors.Is(err, errPendingRecordCorrupt):
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, "", TierDeny, ErrStepUpTokenInvalid, nil)
		return ErrStepUpTokenInvalid
	case errors.Is(err, errPendingCodeMismatch):
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, "", TierDeny, ErrStepUpCodeInvalid, nil)
		return ErrStepUpCodeInvalid
	case errors.Is(err, errPendingAttemptsExceeded):
		e.metricInc(MetricStepUpAttemptsExceeded)
		e.emitAudit(ctx, auditEventStepUpFailure, false, "", TierDeny, ErrStepUpAttemptsExceeded, nil)
		return ErrStepUpAttemptsExceeded
	default:
		e.metricInc(MetricStepUpFailure)
		e.emitAudit(ctx, auditEventStepUpFailure, false, "", TierDeny, ErrStepUpUnavailable, nil)
		return ErrStepUpUnavailable
	}
}
