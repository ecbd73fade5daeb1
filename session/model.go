package session

import (
	"time"

	"github.com/google/uuid"
)

// Record is the server-side view of one authenticated device. It is
// stored as JSON under session:<id> and indexed by account through
// the account_sessions:<account-id> set.
type Record struct {
	ID               uuid.UUID `json:"id"`
	AccountID        uuid.UUID `json:"account_id"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"`
	IP               string    `json:"ip,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}
