package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/internal/metrics"
	"github.com/mkarpis/authcore/jwt"
	"github.com/mkarpis/authcore/session"
	"github.com/mkarpis/authcore/store"
)

// Refresh rotates a refresh token: the presented value is retired and
// a fresh pair is issued in one step. A replayed value fails with
// ErrTokenInvalid no matter why it is no longer live.
func (e *Engine) Refresh(ctx context.Context, refreshValue string) (*TokenPair, error) {
	now := time.Now()
	oldHash := store.HashToken(refreshValue)

	nextValue := uuid.NewString()
	next := store.RefreshToken{
		ID:        uuid.New(),
		TokenHash: store.HashToken(nextValue),
		ExpiresAt: now.Add(e.cfg.RefreshTTL),
		CreatedAt: now,
	}

	// AccountID rides along from the retired record; the store binds
	// the successor to the same account.
	old, err := e.tokens.FindValid(ctx, oldHash, now)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			e.metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	next.AccountID = old.AccountID

	if _, err := e.tokens.Rotate(ctx, oldHash, next, now); err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			e.metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeFailed).Inc()
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	account, err := e.accounts.FindByID(ctx, next.AccountID)
	if err != nil {
		return nil, err
	}
	access, err := e.jwt.IssueAccess(account.ID.String(), account.Email, account.Roles)
	if err != nil {
		return nil, err
	}

	e.rebindSession(ctx, account.ID, oldHash, next.TokenHash)

	e.metrics.TokenRefreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindTokenRefreshed,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
	})
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: nextValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.cfg.AccessTTL / time.Second),
	}, nil
}

// rebindSession moves the session that carried the retired token onto
// its successor. Sessions are visibility metadata, so a registry
// error only logs.
func (e *Engine) rebindSession(ctx context.Context, accountID uuid.UUID, oldHash, newHash string) {
	record, err := e.sessions.FindByRefreshHash(ctx, accountID, oldHash)
	if errors.Is(err, session.ErrNotFound) {
		return
	}
	if err != nil {
		e.log.Warn("session lookup failed during rotation", zap.Error(err))
		return
	}
	if err := e.sessions.Rebind(ctx, record.ID, newHash); err != nil {
		e.log.Warn("session rebind failed during rotation", zap.Error(err))
	}
}

// Logout revokes the presented refresh token and retires its session.
// Logging out with a token that is already dead is a no-op.
func (e *Engine) Logout(ctx context.Context, refreshValue string) error {
	now := time.Now()
	tokenHash := store.HashToken(refreshValue)

	old, err := e.tokens.FindValid(ctx, tokenHash, now)
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return nil
		}
		return err
	}

	revoked, err := e.tokens.Revoke(ctx, tokenHash, now)
	if err != nil {
		return err
	}
	if !revoked {
		return nil
	}

	if record, err := e.sessions.FindByRefreshHash(ctx, old.AccountID, tokenHash); err == nil {
		if err := e.sessions.Invalidate(ctx, record.ID); err != nil {
			e.log.Warn("session invalidation failed on logout", zap.Error(err))
		} else {
			e.metrics.SessionsRevoked.Inc()
		}
	}

	e.emit(ctx, AuditEvent{
		Kind:      audit.KindLogout,
		AccountID: old.AccountID.String(),
		Success:   true,
	})
	return nil
}

// RevokeAllTokens revokes every live refresh token of the account and
// drops all of its sessions. It returns how many tokens were revoked.
func (e *Engine) RevokeAllTokens(ctx context.Context, accountID string) (int, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}

	revoked, err := e.tokens.RevokeAllForAccount(ctx, account.ID, time.Now())
	if err != nil {
		return 0, err
	}
	dropped, err := e.sessions.InvalidateAll(ctx, account.ID)
	if err != nil {
		e.log.Warn("session sweep failed during revocation", zap.Error(err))
	} else if dropped > 0 {
		e.metrics.SessionsRevoked.Add(float64(dropped))
	}

	e.emit(ctx, AuditEvent{
		Kind:      audit.KindTokenRevoked,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
		Detail:    map[string]string{"scope": "all"},
	})
	return revoked, nil
}

// Validate checks an access token offline and returns the identity it
// asserts. All failures collapse to ErrAccessTokenInvalid.
func (e *Engine) Validate(_ context.Context, accessToken string) (*Identity, error) {
	claims, reason, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		if reason != jwt.ReasonNone {
			e.log.Debug("access token rejected",
				zap.Stringer("reason", reason),
				zap.Error(err))
			return nil, ErrAccessTokenInvalid
		}
		return nil, err
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrAccessTokenInvalid
	}
	return &Identity{
		AccountID: accountID,
		Email:     claims.Email,
		Roles:     claims.Roles,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
