package authcore

import (
	"errors"
	"time"

	"github.com/mkarpis/authcore/internal/rate"
	"github.com/mkarpis/authcore/password"
)

// Config holds the tunable lifetimes and thresholds of the engine.
// Zero values are filled in from defaultConfig by the Builder.
type Config struct {
	// Issuer is stamped into access-token claims and the TOTP
	// provisioning URI.
	Issuer string

	// AccessTTL bounds how long an access token verifies.
	AccessTTL time.Duration
	// RefreshTTL bounds how long a refresh token rotates.
	RefreshTTL time.Duration
	// ChallengeTTL bounds the window between password verification
	// and second-factor completion.
	ChallengeTTL time.Duration
	// SessionTTL is the sliding lifetime of a session record.
	SessionTTL time.Duration
	// Leeway tolerates clock skew when validating access tokens.
	Leeway time.Duration

	// LockoutThreshold is the consecutive-failure count that locks an
	// account.
	LockoutThreshold int

	// BackupCodeCount and BackupCodeLength shape generated backup
	// codes.
	BackupCodeCount  int
	BackupCodeLength int

	// RateLimits overrides the per-class admission budgets. Nil keeps
	// the defaults.
	RateLimits map[string]rate.Limit

	// Argon2 sets the password-hashing cost parameters. The zero value
	// keeps password.DefaultConfig; Build rejects parameters below the
	// hasher's minimums.
	Argon2 password.Config

	// PrivateKeyPEM and PublicKeyPEM configure the Ed25519 signing
	// pair. Both empty generates an ephemeral pair.
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte

	// AuditBufferSize is the dispatcher's queue depth.
	AuditBufferSize int
}

func defaultConfig() Config {
	return Config{
		Issuer:           "authcore",
		AccessTTL:        15 * time.Minute,
		RefreshTTL:       7 * 24 * time.Hour,
		ChallengeTTL:     5 * time.Minute,
		SessionTTL:       7 * 24 * time.Hour,
		Leeway:           30 * time.Second,
		LockoutThreshold: 5,
		BackupCodeCount:  10,
		BackupCodeLength: 8,
		Argon2:           password.DefaultConfig(),
		AuditBufferSize:  256,
	}
}

func (c Config) validate() error {
	if c.Issuer == "" {
		return errors.New("config: issuer is required")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ChallengeTTL <= 0 || c.SessionTTL <= 0 {
		return errors.New("config: lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("config: access ttl must be shorter than refresh ttl")
	}
	if c.LockoutThreshold < 0 {
		return errors.New("config: lockout threshold must not be negative")
	}
	if c.BackupCodeCount <= 0 || c.BackupCodeLength < 6 {
		return errors.New("config: backup code shape invalid")
	}
	return nil
}

// merged fills unset fields from the defaults.
func (c Config) merged() Config {
	def := defaultConfig()
	if c.Issuer == "" {
		c.Issuer = def.Issuer
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = def.AccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = def.RefreshTTL
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = def.ChallengeTTL
	}
	if c.SessionTTL == 0 {
		c.SessionTTL = def.SessionTTL
	}
	if c.Leeway == 0 {
		c.Leeway = def.Leeway
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = def.LockoutThreshold
	}
	if c.BackupCodeCount == 0 {
		c.BackupCodeCount = def.BackupCodeCount
	}
	if c.BackupCodeLength == 0 {
		c.BackupCodeLength = def.BackupCodeLength
	}
	if c.Argon2 == (password.Config{}) {
		c.Argon2 = def.Argon2
	}
	if c.AuditBufferSize == 0 {
		c.AuditBufferSize = def.AuditBufferSize
	}
	return c
}
