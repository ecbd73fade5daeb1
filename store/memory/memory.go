// Package memory provides mutex-guarded in-memory implementations of
// the store contracts. Intended for tests and single-process examples;
// production deployments use store/postgres so state is shared across
// instances.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkarpis/authcore/store"
)

// AccountStore keeps accounts in a map keyed by id.
type AccountStore struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*store.Account
	byEmail map[string]uuid.UUID
}

// NewAccountStore returns an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		byID:    make(map[uuid.UUID]*store.Account),
		byEmail: make(map[string]uuid.UUID),
	}
}

// Put inserts or replaces an account. Test/bootstrap helper, not part
// of the store contract.
func (s *AccountStore) Put(account store.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := cloneAccount(&account)
	s.byID[account.ID] = copied
	s.byEmail[normalizeEmail(account.Email)] = account.ID
}

func (s *AccountStore) FindByEmail(_ context.Context, email string) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return cloneAccount(s.byID[id]), nil
}

func (s *AccountStore) FindByID(_ context.Context, id uuid.UUID) (*store.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *AccountStore) RecordLoginFailure(_ context.Context, id uuid.UUID, threshold int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return 0, false, store.ErrAccountNotFound
	}
	account.FailedAttempts++
	if threshold > 0 && account.FailedAttempts >= threshold {
		account.Locked = true
	}
	return account.FailedAttempts, account.Locked, nil
}

func (s *AccountStore) RecordLoginSuccess(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.FailedAttempts = 0
	account.Locked = false
	account.LastLoginAt = time.Now()
	return nil
}

func (s *AccountStore) Unlock(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.FailedAttempts = 0
	account.Locked = false
	return nil
}

func (s *AccountStore) SetMFASecret(_ context.Context, id uuid.UUID, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.MFASecret = secret
	return nil
}

func (s *AccountStore) EnableMFA(_ context.Context, id uuid.UUID, backupHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.MFAEnabled = true
	account.BackupCodeHashes = append([]string(nil), backupHashes...)
	return nil
}

func (s *AccountStore) DisableMFA(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.MFAEnabled = false
	account.MFASecret = ""
	account.BackupCodeHashes = nil
	return nil
}

func (s *AccountStore) RemoveBackupCodeHash(_ context.Context, id uuid.UUID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return false, store.ErrAccountNotFound
	}
	for i, stored := range account.BackupCodeHashes {
		if stored == hash {
			account.BackupCodeHashes = append(account.BackupCodeHashes[:i], account.BackupCodeHashes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *AccountStore) ReplaceBackupCodes(_ context.Context, id uuid.UUID, backupHashes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.byID[id]
	if !ok {
		return store.ErrAccountNotFound
	}
	account.BackupCodeHashes = append([]string(nil), backupHashes...)
	return nil
}

// RefreshTokenStore keeps refresh-token records in a map keyed by
// token hash. Records are never removed, matching the durable store.
type RefreshTokenStore struct {
	mu     sync.Mutex
	byHash map[string]*store.RefreshToken
}

// NewRefreshTokenStore returns an empty in-memory token store.
func NewRefreshTokenStore() *RefreshTokenStore {
	return &RefreshTokenStore{byHash: make(map[string]*store.RefreshToken)}
}

func (s *RefreshTokenStore) Insert(_ context.Context, token store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := token
	s.byHash[token.TokenHash] = &copied
	return nil
}

func (s *RefreshTokenStore) FindValid(_ context.Context, tokenHash string, now time.Time) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.validLocked(tokenHash, now)
	if record == nil {
		return nil, store.ErrTokenNotFound
	}
	copied := *record
	return &copied, nil
}

func (s *RefreshTokenStore) Revoke(_ context.Context, tokenHash string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.validLocked(tokenHash, now)
	if record == nil {
		return false, nil
	}
	record.Revoked = true
	return true, nil
}

func (s *RefreshTokenStore) Rotate(_ context.Context, oldHash string, next store.RefreshToken, now time.Time) (*store.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.validLocked(oldHash, now)
	if record == nil {
		return nil, store.ErrTokenNotFound
	}
	record.Revoked = true
	copied := next
	s.byHash[next.TokenHash] = &copied
	old := *record
	return &old, nil
}

func (s *RefreshTokenStore) RevokeAllForAccount(_ context.Context, accountID uuid.UUID, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	revoked := 0
	for _, record := range s.byHash {
		if record.AccountID == accountID && !record.Revoked && record.ExpiresAt.After(now) {
			record.Revoked = true
			revoked++
		}
	}
	return revoked, nil
}

func (s *RefreshTokenStore) validLocked(tokenHash string, now time.Time) *store.RefreshToken {
	record, ok := s.byHash[tokenHash]
	if !ok || record.Revoked || !record.ExpiresAt.After(now) {
		return nil
	}
	return record
}

func cloneAccount(a *store.Account) *store.Account {
	copied := *a
	copied.Roles = append([]string(nil), a.Roles...)
	copied.BackupCodeHashes = append([]string(nil), a.BackupCodeHashes...)
	return &copied
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
