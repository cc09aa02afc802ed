package geogate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goGeoGate/geo"
	"github.com/MrEthical07/goGeoGate/internal/rate"
	"github.com/MrEthical07/goGeoGate/jwt"
	"github.com/MrEthical07/goGeoGate/session"
)

// Engine defines a public type used by goGeoGate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	resolver     *geo.Resolver
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	pendingStore *pendingVerificationStore
	accountStore *accountRecordStore
	audit        *auditDispatcher
	metrics      *Metrics
	jwtManager   *jwt.Manager
	identity     IdentityProvider
	delivery     OTPDelivery
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// GetSession reports whether the account currently holds an unexpired
// session and its absolute expiry. Reading the session never extends
// it: the expiry was fixed at the last successful authentication.
func (e *Engine) GetSession(ctx context.Context, accountID string) (*SessionStatus, error) {
	if e == nil || e.sessionStore == nil {
		return nil, ErrEngineNotReady
	}
	if accountID == "" {
		return &SessionStatus{}, nil
	}

	sess, err := e.sessionStore.Get(ctx, accountID)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionExpired):
			e.metricInc(MetricSessionExpired)
			return &SessionStatus{}, nil
		case errors.Is(err, session.ErrSessionNotFound):
			return &SessionStatus{}, nil
		default:
			return nil, ErrRecordUnavailable
		}
	}

	return &SessionStatus{Valid: true, ExpiresAt: sess.ExpiresAt}, nil
}

// ValidateToken parses a signed session token and re-checks the
// persisted session record, returning the account id. The token alone
// is never sufficient: an invalidated or expired record fails the
// check even for a token that is cryptographically valid.
func (e *Engine) ValidateToken(ctx context.Context, tokenStr string) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}

	claims, err := e.jwtManager.ParseSessionToken(tokenStr)
	if err != nil {
		return "", ErrSessionNotFound
	}

	status, err := e.GetSession(ctx, claims.AccountID)
	if err != nil {
		return "", err
	}
	if !status.Valid {
		return "", ErrSessionNotFound
	}

	return claims.AccountID, nil
}

// Logout invalidates the account's session. Idempotent: logging out
// without a session is not an error.
func (e *Engine) Logout(ctx context.Context, accountID string) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}

	err := e.sessionStore.Invalidate(ctx, accountID)
	if err == nil {
		e.metricInc(MetricLogout)
	}
	e.emitAudit(ctx, auditEventLogoutSession, err == nil, accountID, TierAllow, err, nil)
	if err != nil {
		return ErrRecordUnavailable
	}
	return nil
}

func (e *Engine) sessionLifetime() time.Duration {
	return e.config.Session.Lifetime
}

// normalizeEmail canonicalizes the login identifier so that throttle
// counters, identity lookups and audit records agree on one spelling.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// finalizeSession persists a fresh session and optionally issues a
// signed token for it.
func (e *Engine) finalizeSession(ctx context.Context, accountID string) (*session.Session, string, error) {
	sess, err := e.sessionStore.Finalize(ctx, accountID, e.sessionLifetime())
	if err != nil {
		return nil, "", ErrRecordUnavailable
	}
	e.metricInc(MetricSessionCreated)

	var token string
	if e.jwtManager != nil {
		token, err = e.jwtManager.CreateSessionToken(accountID, time.Unix(sess.ExpiresAt, 0))
		if err != nil {
			return nil, "", err
		}
	}

	return sess, token, nil
}

func (e *Engine) accountView(accountID string, record *accountRecord, sess *session.Session) *Account {
	acct := &Account{
		AccountID:    accountID,
		Email:        record.Email,
		Name:         record.Name,
		HomeLocation: record.HomeLocation,
		CreatedAt:    record.CreatedAt,
	}
	if sess != nil {
		acct.SessionExpiry = sess.ExpiresAt
	}
	return acct
}
