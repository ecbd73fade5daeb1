// Package postgres implements the store contracts on PostgreSQL via
// pgx. Counters and token rotation are pushed into single conditional
// statements so concurrent logins and refreshes stay consistent
// without application-side locking.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarpis/authcore/store"
)

// AccountStore persists accounts in the accounts table.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore wraps an existing connection pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// unavailable tags an infrastructure failure (pool exhaustion,
// network, query errors) so callers can match store.ErrUnavailable
// without inspecting pgx internals. The cause stays in the chain.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

const accountColumns = `id, email, password_hash, roles, mfa_enabled,
	coalesce(mfa_secret, ''), coalesce(backup_code_hashes, '{}'),
	failed_attempts, locked, created_at, coalesce(last_login_at, 'epoch'::timestamptz)`

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)`, email)
	return scanAccount(row)
}

func (s *AccountStore) FindByID(ctx context.Context, id uuid.UUID) (*store.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// RecordLoginFailure increments the counter and flips the lock in one
// statement, so two concurrent failures cannot both observe a count
// below the threshold.
func (s *AccountStore) RecordLoginFailure(ctx context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE accounts
		    SET failed_attempts = failed_attempts + 1,
		        locked = locked OR (failed_attempts + 1 >= $2)
		  WHERE id = $1
		  RETURNING failed_attempts, locked`, id, threshold)
	var attempts int
	var locked bool
	if err := row.Scan(&attempts, &locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, store.ErrAccountNotFound
		}
		return 0, false, unavailable("record login failure", err)
	}
	return attempts, locked, nil
}

func (s *AccountStore) RecordLoginSuccess(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "record login success",
		`UPDATE accounts
		    SET failed_attempts = 0, locked = false, last_login_at = now()
		  WHERE id = $1`, id)
}

func (s *AccountStore) Unlock(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "unlock",
		`UPDATE accounts SET failed_attempts = 0, locked = false WHERE id = $1`, id)
}

func (s *AccountStore) SetMFASecret(ctx context.Context, id uuid.UUID, secret string) error {
	return s.exec(ctx, "set mfa secret",
		`UPDATE accounts SET mfa_secret = $2 WHERE id = $1`, id, secret)
}

func (s *AccountStore) EnableMFA(ctx context.Context, id uuid.UUID, backupHashes []string) error {
	return s.exec(ctx, "enable mfa",
		`UPDATE accounts SET mfa_enabled = true, backup_code_hashes = $2 WHERE id = $1`,
		id, backupHashes)
}

func (s *AccountStore) DisableMFA(ctx context.Context, id uuid.UUID) error {
	return s.exec(ctx, "disable mfa",
		`UPDATE accounts
		    SET mfa_enabled = false, mfa_secret = NULL, backup_code_hashes = NULL
		  WHERE id = $1`, id)
}

// RemoveBackupCodeHash deletes the hash from the array only if it is
// still present; the row count tells the caller whether this use won.
func (s *AccountStore) RemoveBackupCodeHash(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts
		    SET backup_code_hashes = array_remove(backup_code_hashes, $2)
		  WHERE id = $1 AND $2 = ANY(backup_code_hashes)`, id, hash)
	if err != nil {
		return false, unavailable("remove backup code", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *AccountStore) ReplaceBackupCodes(ctx context.Context, id uuid.UUID, backupHashes []string) error {
	return s.exec(ctx, "replace backup codes",
		`UPDATE accounts SET backup_code_hashes = $2 WHERE id = $1`, id, backupHashes)
}

func (s *AccountStore) exec(ctx context.Context, op, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return unavailable(op, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*store.Account, error) {
	var a store.Account
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.Roles, &a.MFAEnabled,
		&a.MFASecret, &a.BackupCodeHashes,
		&a.FailedAttempts, &a.Locked, &a.CreatedAt, &a.LastLoginAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrAccountNotFound
	}
	if err != nil {
		return nil, unavailable("scan account", err)
	}
	return &a, nil
}
