package geogate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventRegisterSuccess   = "register_success"
	auditEventRegisterFailure   = "register_failure"
	auditEventRegisterDuplicate = "register_duplicate"
	auditEventLoginAllowed      = "login_allowed"
	auditEventLoginDenied       = "login_denied"
	auditEventLoginFailure      = "login_failure"
	auditEventLoginRateLimited  = "login_rate_limited"
	auditEventStepUpIssued      = "stepup_issued"
	auditEventStepUpSuccess     = "stepup_success"
	auditEventStepUpFailure     = "stepup_failure"
	auditEventStepUpRateLimited = "stepup_rate_limited"
	auditEventHomeRelocated     = "home_relocated"
	auditEventLocationAlert     = "location_alert"
	auditEventLogoutSession     = "logout_session"
)

// AuditErrorCode defines a public type used by goGeoGate APIs.
//
// AuditErrorCode instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrLocationDenied     AuditErrorCode = "location_denied"
	auditErrLocationUnknown    AuditErrorCode = "location_unavailable"
	auditErrStepUpInvalid      AuditErrorCode = "stepup_invalid"
	auditErrStepUpExpired      AuditErrorCode = "stepup_expired"
	auditErrAttemptsExceeded   AuditErrorCode = "attempts_exceeded"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrAccountNotFound    AuditErrorCode = "account_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	tier RiskTier,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Tier:      tier.String(),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrStepUpRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrLocationDenied):
		return auditErrLocationDenied
	case errors.Is(err, ErrLocationUnavailable):
		return auditErrLocationUnknown
	case errors.Is(err, ErrStepUpTokenInvalid),
		errors.Is(err, ErrStepUpCodeInvalid):
		return auditErrStepUpInvalid
	case errors.Is(err, ErrStepUpExpired):
		return auditErrStepUpExpired
	case errors.Is(err, ErrStepUpAttemptsExceeded):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionExpired):
		return auditErrSessionNotFound
	case errors.Is(err, ErrAccountNotFound):
		return auditErrAccountNotFound
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrStepUpUnavailable),
		errors.Is(err, ErrDeliveryUnavailable),
		errors.Is(err, ErrRecordUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
