package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod defines a public type used by goGeoGate APIs.
//
// SigningMethod instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SigningMethod string

const (
	// MethodHS256 is an exported constant or variable used by the authentication engine.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 is an exported constant or variable used by the authentication engine.
	MethodEd25519 SigningMethod = "ed25519"
)

// Config defines a public type used by goGeoGate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

// SessionClaims defines a public type used by goGeoGate APIs.
//
// SessionClaims instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionClaims struct {
	AccountID string `json:"aid"`
	jwt.RegisteredClaims
}

// Manager defines a public type used by goGeoGate APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config     Config
	signKey    any
	verifyKey  any
	signMethod jwt.SigningMethod
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{config: cfg}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.signMethod = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		priv, err := parseEdPrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		m.signMethod = jwt.SigningMethodEdDSA
		m.signKey = priv
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verifyKey = pub
		} else {
			m.verifyKey = priv.Public()
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	return m, nil
}

// CreateSessionToken describes the createsessiontoken operation and its observable behavior.
//
// CreateSessionToken may return an error when input validation, dependency calls, or security checks fail.
// CreateSessionToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) CreateSessionToken(accountID string, expiresAt time.Time) (string, error) {
	if accountID == "" {
		return "", errors.New("empty account id")
	}

	now := time.Now()
	claims := SessionClaims{
		AccountID: accountID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	return jwt.NewWithClaims(m.signMethod, claims).SignedString(m.signKey)
}

// ParseSessionToken describes the parsesessiontoken operation and its observable behavior.
//
// ParseSessionToken may return an error when input validation, dependency calls, or security checks fail.
// ParseSessionToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) ParseSessionToken(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.signMethod.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return m.verifyKey, nil
	}, jwt.WithValidMethods([]string{m.signMethod.Alg()}))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	default:
		return nil, errors.New("invalid ed25519 private key size")
	}
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("invalid ed25519 public key size")
	}
	return ed25519.PublicKey(key), nil
}
