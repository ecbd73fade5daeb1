package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mkarpis/authcore/store"
)

// RefreshTokenStore persists refresh tokens in the refresh_tokens
// table. Rows are flipped to revoked, never deleted, so a replayed
// value stays distinguishable in the data even though callers only
// see ErrTokenNotFound.
type RefreshTokenStore struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenStore wraps an existing connection pool.
func NewRefreshTokenStore(pool *pgxpool.Pool) *RefreshTokenStore {
	return &RefreshTokenStore{pool: pool}
}

func (s *RefreshTokenStore) Insert(ctx context.Context, token store.RefreshToken) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)`,
		token.ID, token.AccountID, token.TokenHash, token.ExpiresAt, token.CreatedAt)
	if err != nil {
		return unavailable("insert refresh token", err)
	}
	return nil
}

func (s *RefreshTokenStore) FindValid(ctx context.Context, tokenHash string, now time.Time) (*store.RefreshToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, account_id, token_hash, expires_at, revoked, created_at
		   FROM refresh_tokens
		  WHERE token_hash = $1 AND NOT revoked AND expires_at > $2`,
		tokenHash, now)
	return scanToken(row)
}

func (s *RefreshTokenStore) Revoke(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true
		  WHERE token_hash = $1 AND NOT revoked AND expires_at > $2`,
		tokenHash, now)
	if err != nil {
		return false, unavailable("revoke refresh token", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Rotate revokes the old row and inserts the successor in one
// transaction. The conditional UPDATE is the linearization point:
// whichever concurrent caller flips the row first wins, the rest get
// ErrTokenNotFound.
func (s *RefreshTokenStore) Rotate(ctx context.Context, oldHash string, next store.RefreshToken, now time.Time) (*store.RefreshToken, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, unavailable("rotate refresh token", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`UPDATE refresh_tokens SET revoked = true
		  WHERE token_hash = $1 AND NOT revoked AND expires_at > $2
		  RETURNING id, account_id, token_hash, expires_at, revoked, created_at`,
		oldHash, now)
	old, err := scanToken(row)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO refresh_tokens (id, account_id, token_hash, expires_at, revoked, created_at)
		 VALUES ($1, $2, $3, $4, false, $5)`,
		next.ID, next.AccountID, next.TokenHash, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return nil, unavailable("insert rotated token", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, unavailable("rotate refresh token", err)
	}
	return old, nil
}

func (s *RefreshTokenStore) RevokeAllForAccount(ctx context.Context, accountID uuid.UUID, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = true
		  WHERE account_id = $1 AND NOT revoked AND expires_at > $2`,
		accountID, now)
	if err != nil {
		return 0, unavailable("revoke account tokens", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanToken(row pgx.Row) (*store.RefreshToken, error) {
	var t store.RefreshToken
	err := row.Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrTokenNotFound
	}
	if err != nil {
		return nil, unavailable("scan refresh token", err)
	}
	return &t, nil
}
