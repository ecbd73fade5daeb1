// Package challenge stores the short-lived correlators that bridge a
// password-verified login to its second factor. A correlator is an
// opaque random id mapped to the account it belongs to; it is consumed
// atomically so a replayed verification loses even under races.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "mfa:"

// ErrNotFound is returned when a correlator expired, was already
// consumed, or never existed. Callers cannot tell which.
var ErrNotFound = errors.New("challenge: not found")

// Store issues and consumes MFA correlators.
type Store struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewStore builds a Store with the given challenge lifetime.
func NewStore(client redis.UniversalClient, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Issue creates a fresh correlator bound to the account.
func (s *Store) Issue(ctx context.Context, accountID uuid.UUID) (string, error) {
	token := uuid.NewString()
	if err := s.client.Set(ctx, keyPrefix+token, accountID.String(), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("challenge: issue: %w", err)
	}
	return token, nil
}

// Consume resolves the correlator to its account and deletes it in the
// same operation. GETDEL makes the first caller the only winner.
func (s *Store) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	raw, err := s.client.GetDel(ctx, keyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("challenge: consume: %w", err)
	}
	accountID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("challenge: corrupt correlator payload: %w", err)
	}
	return accountID, nil
}
