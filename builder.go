package geogate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGeoGate/geo"
	"github.com/MrEthical07/goGeoGate/internal/rate"
	"github.com/MrEthical07/goGeoGate/jwt"
	"github.com/MrEthical07/goGeoGate/session"
)

// Builder defines a public type used by goGeoGate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	primaryProvider   geo.Provider
	secondaryProvider geo.Provider
	resolver          *geo.Resolver

	identity  IdentityProvider
	delivery  OTPDelivery
	auditSink AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithIdentityProvider describes the withidentityprovider operation and its observable behavior.
//
// WithIdentityProvider may return an error when input validation, dependency calls, or security checks fail.
// WithIdentityProvider does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithIdentityProvider(ip IdentityProvider) *Builder {
	b.identity = ip
	return b
}

// WithOTPDelivery describes the withotpdelivery operation and its observable behavior.
//
// WithOTPDelivery may return an error when input validation, dependency calls, or security checks fail.
// WithOTPDelivery does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithOTPDelivery(d OTPDelivery) *Builder {
	b.delivery = d
	return b
}

// WithGeoProviders sets the primary and secondary IP geolocation
// providers. The secondary may be nil; it is consulted only when the
// primary fails or times out.
func (b *Builder) WithGeoProviders(primary, secondary geo.Provider) *Builder {
	b.primaryProvider = primary
	b.secondaryProvider = secondary
	return b
}

// WithGeoResolver injects a fully constructed resolver, overriding
// [Builder.WithGeoProviders] and the Geo timeouts in Config.
func (b *Builder) WithGeoResolver(r *geo.Resolver) *Builder {
	b.resolver = r
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms may return an error when input validation, dependency calls, or security checks fail.
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.identity == nil {
		return nil, errors.New("identity provider required")
	}
	if b.delivery == nil && cfg.StepUp.Strategy == StepUpOTP {
		return nil, errors.New("otp delivery required for OTP step-up strategy")
	}

	resolver := b.resolver
	if resolver == nil {
		if b.primaryProvider == nil {
			return nil, errors.New("geo provider required")
		}
		resolver = geo.NewResolver(b.primaryProvider, b.secondaryProvider, geo.ResolverConfig{
			PrimaryTimeout:   cfg.Geo.PrimaryTimeout,
			SecondaryTimeout: cfg.Geo.SecondaryTimeout,
		})
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		resolver:     resolver,
		sessionStore: session.NewStore(b.redis, cfg.Session.RedisPrefix),
		pendingStore: newPendingVerificationStore(b.redis),
		accountStore: newAccountRecordStore(b.redis),
		identity:     b.identity,
		delivery:     b.delivery,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:      cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		ResendCooldown:        cfg.StepUp.ResendCooldown,
	})
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	if cfg.Token.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
			PublicKey:     cloneBytes(cfg.Token.PublicKey),
			Issuer:        cfg.Token.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	b.built = true

	return engine, nil
}
