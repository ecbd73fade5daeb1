// Package keys manages the asymmetric signing key pair used for access
// tokens. A configured key pair is loaded from PEM; when none is
// configured an ephemeral pair is generated so the process can still
// start, at the cost of tokens that no other instance can verify.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var (
	// ErrMalformedKey is returned when a configured key cannot be
	// parsed. The process must not start with a broken key.
	ErrMalformedKey = errors.New("malformed signing key")

	// ErrKeyMismatch is returned when the configured public key does
	// not belong to the configured private key.
	ErrKeyMismatch = errors.New("signing key pair mismatch")
)

// Config carries PEM-encoded key material. Both fields empty means
// "generate an ephemeral pair". A private key alone is accepted; the
// public key is derived from it.
type Config struct {
	PrivateKeyPEM []byte
	PublicKeyPEM  []byte
}

// Manager signs and verifies raw payloads with Ed25519 and exposes the
// public key for cross-service verification.
type Manager struct {
	private   ed25519.PrivateKey
	public    ed25519.PublicKey
	ephemeral bool
}

// NewManager loads or generates the key pair. Malformed configured
// keys are a hard startup error.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(cfg.PrivateKeyPEM) == 0 && len(cfg.PublicKeyPEM) == 0 {
		public, private, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
		}
		logger.Warn("no signing key configured; generated an EPHEMERAL key pair. " +
			"Tokens signed by this instance cannot be verified by any other instance " +
			"and all tokens become invalid on restart. Configure a persistent key pair " +
			"before running more than one instance.")
		return &Manager{private: private, public: public, ephemeral: true}, nil
	}

	if len(cfg.PrivateKeyPEM) == 0 {
		return nil, fmt.Errorf("%w: public key configured without private key", ErrMalformedKey)
	}

	private, err := parsePrivatePEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	derived := private.Public().(ed25519.PublicKey)

	if len(cfg.PublicKeyPEM) > 0 {
		public, err := parsePublicPEM(cfg.PublicKeyPEM)
		if err != nil {
			return nil, err
		}
		if !derived.Equal(public) {
			return nil, ErrKeyMismatch
		}
	}

	return &Manager{private: private, public: derived}, nil
}

// Sign returns the Ed25519 signature of payload.
func (m *Manager) Sign(payload []byte) []byte {
	return ed25519.Sign(m.private, payload)
}

// Verify reports whether sig is a valid signature of payload under the
// manager's public key.
func (m *Manager) Verify(payload, sig []byte) bool {
	return ed25519.Verify(m.public, payload, sig)
}

// Private returns the signing key for use by the token issuer.
func (m *Manager) Private() ed25519.PrivateKey {
	return m.private
}

// Public returns the verification key.
func (m *Manager) Public() ed25519.PublicKey {
	return m.public
}

// Ephemeral reports whether the pair was generated at startup rather
// than loaded from configuration.
func (m *Manager) Ephemeral() bool {
	return m.ephemeral
}

// PublicPEM returns the verification key in PKIX PEM form, suitable
// for distribution to downstream services.
func (m *Manager) PublicPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(m.public)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalPrivatePEM encodes an Ed25519 private key in PKCS#8 PEM form.
// Provided for key provisioning tooling.
func MarshalPrivatePEM(key ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

func parsePrivatePEM(data []byte) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in private key", ErrMalformedKey)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is not ed25519", ErrMalformedKey)
	}
	return key, nil
}

func parsePublicPEM(data []byte) (ed25519.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block in public key", ErrMalformedKey)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is not ed25519", ErrMalformedKey)
	}
	return key, nil
}
