package authcore

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair is the credential set handed out after full
// authentication.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// LoginResult is the outcome of a password check. Exactly one of
// Tokens or MFAToken is set: accounts with a second factor get a
// correlator instead of credentials.
type LoginResult struct {
	Tokens      *TokenPair `json:"tokens,omitempty"`
	MFARequired bool       `json:"mfa_required"`
	MFAToken    string     `json:"mfa_token,omitempty"`
	SessionID   uuid.UUID  `json:"session_id,omitempty"`
}

// MFASetup is the provisioning material returned by SetupMFA. The
// secret is not active until ActivateMFA proves the authenticator
// works.
type MFASetup struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
}

// MFAActivation carries the backup codes minted when the second
// factor goes live. Plaintext codes are shown exactly once.
type MFAActivation struct {
	BackupCodes []string `json:"backup_codes"`
}

// Session is the caller-facing view of a registered session.
type Session struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Identity is the validated subject of an access token.
type Identity struct {
	AccountID uuid.UUID
	Email     string
	Roles     []string
	ExpiresAt time.Time
}
