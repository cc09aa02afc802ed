package geogate

import (
	"errors"
	"time"
)

// Config defines a public type used by goGeoGate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Policy   PolicyConfig
	Session  SessionConfig
	StepUp   StepUpConfig
	Geo      GeoConfig
	Security SecurityConfig
	Token    TokenConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
POLICY CONFIG
====================================
*/

// PolicyConfig tunes the distance-based risk decision.
//
// ToleranceMeters is the base tolerance T of the tier ladder. The
// right production value is an operational decision balancing
// IP-geolocation inaccuracy against security: tens of kilometers, on
// the order of 50–150 km, not the sub-20 km figure GPS-only reasoning
// suggests.
type PolicyConfig struct {
	ToleranceMeters  float64
	UnresolvableTier RiskTier
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig defines a public type used by goGeoGate APIs.
//
// SessionConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionConfig struct {
	RedisPrefix string
	Lifetime    time.Duration
}

/*
====================================
STEP-UP CONFIG
====================================
*/

// StepUpStrategyType defines a public type used by goGeoGate APIs.
//
// StepUpStrategyType instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StepUpStrategyType int

const (
	// StepUpOTP is an exported constant or variable used by the location-gated auth engine.
	StepUpOTP StepUpStrategyType = iota
	// StepUpUUID is an exported constant or variable used by the location-gated auth engine.
	StepUpUUID
)

// StepUpConfig defines a public type used by goGeoGate APIs.
//
// StepUpConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StepUpConfig struct {
	Strategy       StepUpStrategyType
	CodeDigits     int
	ChallengeTTL   time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	SendTimeout    time.Duration
}

/*
====================================
GEO CONFIG
====================================
*/

// GeoConfig defines a public type used by goGeoGate APIs.
//
// GeoConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GeoConfig struct {
	PrimaryTimeout   time.Duration
	SecondaryTimeout time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig defines a public type used by goGeoGate APIs.
//
// SecurityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SecurityConfig struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls signed session token issuance. When Enabled is
// false the engine persists sessions but returns no token; callers
// then drive authorization purely through [Engine.GetSession].
type TokenConfig struct {
	Enabled       bool
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// AuditConfig defines a public type used by goGeoGate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goGeoGate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the baseline configuration: 50 km tolerance,
// deny on unresolvable location, 2 h sessions, 6-digit OTP valid for
// 10 minutes with 5 attempts and a 60 s resend cooldown.
func DefaultConfig() Config {
	return Config{
		Policy: PolicyConfig{
			ToleranceMeters:  50_000,
			UnresolvableTier: TierDeny,
		},
		Session: SessionConfig{
			RedisPrefix: "ggs",
			Lifetime:    2 * time.Hour,
		},
		StepUp: StepUpConfig{
			Strategy:       StepUpOTP,
			CodeDigits:     6,
			ChallengeTTL:   10 * time.Minute,
			MaxAttempts:    5,
			ResendCooldown: 60 * time.Second,
			SendTimeout:    5 * time.Second,
		},
		Geo: GeoConfig{
			PrimaryTimeout:   4 * time.Second,
			SecondaryTimeout: 6 * time.Second,
		},
		Security: SecurityConfig{
			EnableIPThrottle:      true,
			MaxLoginAttempts:      10,
			LoginCooldownDuration: 15 * time.Minute,
		},
		Token: TokenConfig{
			Enabled:       false,
			SigningMethod: "hs256",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	if c.Policy.ToleranceMeters <= 0 {
		return errors.New("Policy.ToleranceMeters must be positive")
	}
	if c.Policy.UnresolvableTier != TierDeny && c.Policy.UnresolvableTier != TierStepUpMedium {
		return errors.New("Policy.UnresolvableTier must be TierDeny or TierStepUpMedium")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("Session.Lifetime must be positive")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session.RedisPrefix must not be empty")
	}
	if c.StepUp.Strategy != StepUpOTP && c.StepUp.Strategy != StepUpUUID {
		return errors.New("StepUp.Strategy invalid")
	}
	if c.StepUp.Strategy == StepUpOTP && (c.StepUp.CodeDigits < 6 || c.StepUp.CodeDigits > 10) {
		return errors.New("StepUp.CodeDigits must be between 6 and 10")
	}
	if c.StepUp.ChallengeTTL <= 0 {
		return errors.New("StepUp.ChallengeTTL must be positive")
	}
	if c.StepUp.MaxAttempts <= 0 {
		return errors.New("StepUp.MaxAttempts must be positive")
	}
	if c.StepUp.ResendCooldown < 0 {
		return errors.New("StepUp.ResendCooldown must not be negative")
	}
	if c.Security.MaxLoginAttempts <= 0 {
		return errors.New("Security.MaxLoginAttempts must be positive")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("Security.LoginCooldownDuration must be positive")
	}
	if c.Token.Enabled {
		switch c.Token.SigningMethod {
		case "hs256":
			if len(c.Token.PrivateKey) == 0 {
				return errors.New("Token hs256 requires a private key")
			}
		case "ed25519":
			if len(c.Token.PrivateKey) == 0 {
				return errors.New("Token ed25519 requires a private key")
			}
		default:
			return errors.New("Token.SigningMethod must be hs256 or ed25519")
		}
	}
	return nil
}
