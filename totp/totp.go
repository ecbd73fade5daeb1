// Package totp wraps the time-based one-time password primitive and
// backup-code generation used by MFA enrollment and verification. The
// step algorithm itself is the pquerna/otp implementation; this
// package pins the parameters that are part of the subsystem contract
// (30-second step, 6 digits, SHA1, ±1 step skew).
package totp

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period     = 30
	digits     = otp.DigitsSix
	skew       = 1
	secretSize = 20

	backupCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces TOTP secrets and provisioning URIs for a fixed
// issuer name.
type Generator struct {
	issuer string
}

// NewGenerator returns a Generator labelled with issuer.
func NewGenerator(issuer string) *Generator {
	if strings.TrimSpace(issuer) == "" {
		issuer = "authcore"
	}
	return &Generator{issuer: issuer}
}

// Generate creates a fresh base32 secret and the otpauth:// URI that
// authenticator apps consume, labelled issuer:account.
func (g *Generator) Generate(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      g.issuer,
		AccountName: account,
		Period:      period,
		Digits:      digits,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  secretSize,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// Validate reports whether code is a valid TOTP for secret at time t,
// allowing one step of clock skew on either side. Format errors from
// the underlying library count as an invalid code, not a failure.
func Validate(secret, code string, t time.Time) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, t.UTC(), totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// Validate reports whether code is a valid TOTP for secret at time t.
func (g *Generator) Validate(secret, code string, t time.Time) bool {
	return Validate(secret, code, t)
}

// Code computes the current TOTP for secret at time t. Exposed for
// tests and enrollment verification tooling.
func Code(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateBackupCodes produces count single-use recovery codes of
// length characters from a cryptographically secure source. Codes are
// uppercase alphanumeric; verification case-normalizes input to upper
// before hashing.
func GenerateBackupCodes(count, length int) ([]string, error) {
	if count <= 0 {
		count = 10
	}
	if length <= 0 {
		length = 8
	}

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var b strings.Builder
		b.Grow(length)
		for j := 0; j < length; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return nil, err
			}
			b.WriteByte(backupCodeAlphabet[n.Int64()])
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}
