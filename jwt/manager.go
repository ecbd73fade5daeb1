// Package jwt issues and validates the signed access tokens asserted
// to downstream services. Tokens are EdDSA-signed and self-contained:
// any holder of the public key can verify them without calling back
// into this subsystem.
package jwt

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InvalidReason classifies why a token failed validation. The
// distinction exists for logging only; callers must collapse every
// variant to a single invalid-token outcome.
type InvalidReason int

const (
	ReasonNone InvalidReason = iota
	ReasonMalformed
	ReasonBadSignature
	ReasonExpired
	ReasonClaims
)

func (r InvalidReason) String() string {
	switch r {
	case ReasonMalformed:
		return "malformed"
	case ReasonBadSignature:
		return "bad_signature"
	case ReasonExpired:
		return "expired"
	case ReasonClaims:
		return "invalid_claims"
	default:
		return "none"
	}
}

// Config for the token manager. AccessTTL defaults are enforced by the
// caller; zero or negative TTLs are rejected here.
type Config struct {
	Issuer    string
	AccessTTL time.Duration
	Leeway    time.Duration
	Private   ed25519.PrivateKey
	Public    ed25519.PublicKey
}

// AccessClaims is the payload of an access token: subject is the
// account id, with the account email and role list embedded so
// downstream services can assert identity without a lookup.
type AccessClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Manager signs and parses access tokens. Immutable after creation.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway")
	}
	if len(cfg.Private) != ed25519.PrivateKeySize {
		return nil, errors.New("ed25519 private key required")
	}
	if len(cfg.Public) != ed25519.PublicKeySize {
		return nil, errors.New("ed25519 public key required")
	}
	return &Manager{config: cfg}, nil
}

// IssueAccess mints a signed access token for the account.
// Deterministic given the inputs and the current time.
func (m *Manager) IssueAccess(accountID, email string, roles []string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(m.config.Private)
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// ParseAccess verifies signature, issuer, and expiry. On failure the
// returned reason says which check failed; the error itself carries
// the underlying cause for logs.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, InvalidReason, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.config.Public, nil
	})
	if err != nil {
		return nil, classify(err), err
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ReasonClaims, jwt.ErrTokenInvalidClaims
	}
	return claims, ReasonNone, nil
}

func classify(err error) InvalidReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ReasonBadSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ReasonMalformed
	default:
		return ReasonClaims
	}
}
