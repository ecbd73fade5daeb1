// Package store defines the collaborator contracts the engine consumes:
// an account store and a refresh-token store. Both are shared across all
// instances of the subsystem, so every mutation that participates in a
// security invariant (lockout counting, rotation, backup-code burn) must
// be atomic inside the store, never guarded by in-process locks.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrAccountNotFound is returned for unknown emails or ids. Login
	// paths must map it to an invalid-credentials outcome to avoid
	// account enumeration.
	ErrAccountNotFound = errors.New("account not found")

	// ErrTokenNotFound is returned when a refresh token is absent,
	// expired, or already revoked. The three cases are deliberately
	// indistinguishable: a lost conditional-revoke race looks exactly
	// like an unknown token.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrUnavailable wraps infrastructure failures (pool exhaustion,
	// network, etc.) so callers can surface a generic unavailable
	// instead of leaking store internals.
	ErrUnavailable = errors.New("store unavailable")
)

// Account is the identity root. The subsystem mutates lockout and MFA
// fields; it never creates or deletes accounts.
type Account struct {
	ID               uuid.UUID
	Email            string
	PasswordHash     string
	Roles            []string
	MFAEnabled       bool
	MFASecret        string
	BackupCodeHashes []string
	FailedAttempts   int
	Locked           bool
	CreatedAt        time.Time
	LastLoginAt      time.Time
}

// RefreshToken is the persisted record behind an opaque refresh value.
// Only the SHA-256 hash of the value is stored. Records are revoked,
// never deleted, so replayed values stay detectable.
type RefreshToken struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// HashToken derives the storage key for an opaque token value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// AccountStore is the account collaborator contract.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// RecordLoginFailure atomically increments the failed-attempt
	// counter and, when the post-increment count reaches threshold,
	// sets the lock flag in the same update. Returns the new count
	// and lock state. Two concurrent failures must never both read
	// count=threshold-1 and miss the lock.
	RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int) (attempts int, locked bool, err error)

	// RecordLoginSuccess resets the counter, clears the lock flag,
	// and stamps the last-login time.
	RecordLoginSuccess(ctx context.Context, id uuid.UUID) error

	// Unlock clears the lock flag and counter without a login. This
	// is the operator escape hatch; locks are otherwise sticky.
	Unlock(ctx context.Context, id uuid.UUID) error

	// SetMFASecret stores a pending TOTP secret without enabling MFA.
	SetMFASecret(ctx context.Context, id uuid.UUID, secret string) error

	// EnableMFA flips the enabled flag and stores the backup-code
	// hashes in one update.
	EnableMFA(ctx context.Context, id uuid.UUID, backupHashes []string) error

	// DisableMFA clears the secret, the enabled flag, and all backup
	// codes.
	DisableMFA(ctx context.Context, id uuid.UUID) error

	// RemoveBackupCodeHash atomically removes one stored hash. The
	// false return means the hash was already gone: the caller lost
	// a single-use race and must treat the code as invalid.
	RemoveBackupCodeHash(ctx context.Context, id uuid.UUID, hash string) (bool, error)

	// ReplaceBackupCodes swaps the full stored set (regeneration).
	ReplaceBackupCodes(ctx context.Context, id uuid.UUID, backupHashes []string) error
}

// RefreshTokenStore is the refresh-token collaborator contract.
type RefreshTokenStore interface {
	Insert(ctx context.Context, token RefreshToken) error

	// FindValid looks up the unrevoked, unexpired record for a token
	// hash. Absent/expired/revoked all yield ErrTokenNotFound.
	FindValid(ctx context.Context, tokenHash string, now time.Time) (*RefreshToken, error)

	// Revoke marks the record revoked if it is currently valid.
	// Returns false when no valid record matched; callers decide
	// whether that is an error (rotation) or a no-op (logout).
	Revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error)

	// Rotate atomically revokes the valid record behind oldHash and
	// inserts next in the same transaction. A concurrent Rotate on
	// the same oldHash must observe it already revoked and fail with
	// ErrTokenNotFound; the two writes are never observably separate.
	Rotate(ctx context.Context, oldHash string, next RefreshToken, now time.Time) (*RefreshToken, error)

	// RevokeAllForAccount bulk-revokes every valid token owned by the
	// account and returns how many were revoked.
	RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, now time.Time) (int, error)
}
