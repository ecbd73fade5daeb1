package authcore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/mkarpis/authcore/session"
)

// Sessions lists the account's live sessions. The registry is
// eventually consistent with token state.
func (e *Engine) Sessions(ctx context.Context, accountID string) ([]Session, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	records, err := e.sessions.List(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Session, len(records))
	for i, record := range records {
		out[i] = Session{
			ID:         record.ID,
			AccountID:  record.AccountID,
			IP:         record.IP,
			UserAgent:  record.UserAgent,
			CreatedAt:  record.CreatedAt,
			LastSeenAt: record.LastSeenAt,
		}
	}
	return out, nil
}

// InvalidateSession drops one session by id. The refresh token behind
// it stays valid; use Logout or RevokeAllTokens to kill credentials.
func (e *Engine) InvalidateSession(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	if err := e.sessions.Invalidate(ctx, id); err != nil {
		return err
	}
	e.metrics.SessionsRevoked.Inc()
	return nil
}

// InvalidateAllSessions drops every session of the account and
// reports how many were removed.
func (e *Engine) InvalidateAllSessions(ctx context.Context, accountID string) (int, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	dropped, err := e.sessions.InvalidateAll(ctx, account.ID)
	if err != nil {
		return 0, err
	}
	if dropped > 0 {
		e.metrics.SessionsRevoked.Add(float64(dropped))
	}
	return dropped, nil
}

// TouchSession extends a session's sliding lifetime and stamps its
// last-seen time.
func (e *Engine) TouchSession(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return ErrSessionNotFound
	}
	if err := e.sessions.Touch(ctx, id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}
