// Package session keeps the registry of live authenticated sessions
// in Redis. Every record expires on its own TTL; the per-account set
// is an index only, so a stale member there is harmless and filtered
// out on read.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	recordPrefix = "session:"
	indexPrefix  = "account_sessions:"
)

// ErrNotFound is returned by Get when the session expired or never
// existed.
var ErrNotFound = errors.New("session: not found")

// Store reads and writes session records.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewStore builds a Store with the given sliding TTL.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, now: time.Now}
}

func recordKey(id uuid.UUID) string       { return recordPrefix + id.String() }
func indexKey(accountID uuid.UUID) string { return indexPrefix + accountID.String() }

// Create registers a new session and indexes it under the account.
func (s *Store) Create(ctx context.Context, record Record) error {
	if record.ID == uuid.Nil {
		return errors.New("session: record id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	record.LastSeenAt = record.CreatedAt

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, recordKey(record.ID), raw, s.ttl)
	pipe.SAdd(ctx, indexKey(record.AccountID), record.ID.String())
	pipe.Expire(ctx, indexKey(record.AccountID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Get returns a session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	raw, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &record, nil
}

// Touch extends the session's TTL and stamps last-seen. Missing
// sessions report ErrNotFound so callers can force re-authentication.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	record.LastSeenAt = s.now()
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	s.client.Expire(ctx, indexKey(record.AccountID), s.ttl)
	return nil
}

// Invalidate removes one session. Invalidating a session that is
// already gone is a no-op.
func (s *Store) Invalidate(ctx context.Context, id uuid.UUID) error {
	record, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, recordKey(id))
	pipe.SRem(ctx, indexKey(record.AccountID), id.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: invalidate: %w", err)
	}
	return nil
}

// InvalidateAll removes every live session of the account and returns
// how many were dropped.
func (s *Store) InvalidateAll(ctx context.Context, accountID uuid.UUID) (int, error) {
	members, err := s.client.SMembers(ctx, indexKey(accountID)).Result()
	if err != nil {
		return 0, fmt.Errorf("session: list index: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	keys := make([]string, 0, len(members))
	for _, member := range members {
		keys = append(keys, recordPrefix+member)
	}
	pipe := s.client.TxPipeline()
	deleted := pipe.Del(ctx, keys...)
	pipe.Del(ctx, indexKey(accountID))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("session: invalidate all: %w", err)
	}
	return int(deleted.Val()), nil
}

// List returns the account's live sessions. Index members whose
// record already expired are pruned as a side effect.
func (s *Store) List(ctx context.Context, accountID uuid.UUID) ([]Record, error) {
	members, err := s.client.SMembers(ctx, indexKey(accountID)).Result()
	if err != nil {
		return nil, fmt.Errorf("session: list index: %w", err)
	}
	records := make([]Record, 0, len(members))
	var stale []any
	for _, member := range members {
		id, err := uuid.Parse(member)
		if err != nil {
			stale = append(stale, member)
			continue
		}
		record, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, member)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	if len(stale) > 0 {
		s.client.SRem(ctx, indexKey(accountID), stale...)
	}
	return records, nil
}

// FindByRefreshHash scans the account's sessions for the one bound to
// the given refresh token hash. Used to retire the session alongside
// its token on logout.
func (s *Store) FindByRefreshHash(ctx context.Context, accountID uuid.UUID, tokenHash string) (*Record, error) {
	records, err := s.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].RefreshTokenHash == tokenHash {
			return &records[i], nil
		}
	}
	return nil, ErrNotFound
}

// Rebind points an existing session at a new refresh token hash and
// refreshes its TTL, keeping the session stable across rotations.
func (s *Store) Rebind(ctx context.Context, id uuid.UUID, tokenHash string) error {
	record, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	record.RefreshTokenHash = tokenHash
	record.LastSeenAt = s.now()
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(id), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: rebind: %w", err)
	}
	return nil
}
