package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/internal/challenge"
	"github.com/mkarpis/authcore/internal/metrics"
	"github.com/mkarpis/authcore/internal/rate"
	"github.com/mkarpis/authcore/jwt"
	"github.com/mkarpis/authcore/keys"
	"github.com/mkarpis/authcore/password"
	"github.com/mkarpis/authcore/session"
	"github.com/mkarpis/authcore/store"
	"github.com/mkarpis/authcore/totp"
)

// Engine is the authentication core. Build one with the Builder and
// treat it as immutable; all methods are safe for concurrent use.
type Engine struct {
	cfg Config
	log *zap.Logger

	accounts store.AccountStore
	tokens   store.RefreshTokenStore

	sessions   *session.Store
	challenges *challenge.Store
	gate       *rate.Gate

	hasher     *password.Argon2
	keyManager *keys.Manager
	jwt        *jwt.Manager
	totp       *totp.Generator

	audit   *audit.Dispatcher
	metrics *metrics.Metrics
}

// Close drains the audit dispatcher. The engine must not be used
// afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were discarded because
// the dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// PublicKeyPEM returns the PEM-encoded verification key so resource
// services can validate access tokens offline.
func (e *Engine) PublicKeyPEM() (string, error) {
	pem, err := e.keyManager.PublicPEM()
	if err != nil {
		return "", err
	}
	return string(pem), nil
}

// Admit runs the rate gate for the given traffic class against the
// client address carried in ctx. Transport layers use it to throttle
// endpoints the engine does not own.
func (e *Engine) Admit(ctx context.Context, class string) bool {
	allowed := e.gate.Allow(ctx, class, clientIPFromContext(ctx))
	if !allowed {
		e.metrics.RateLimited.WithLabelValues(class).Inc()
	}
	return allowed
}

// findAccount resolves a string id to an account, mapping bad ids and
// missing rows to ErrAccountNotFound.
func (e *Engine) findAccount(ctx context.Context, accountID string) (*store.Account, error) {
	id, err := uuid.Parse(accountID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	account, err := e.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if event.UserAgent == "" {
		event.UserAgent = userAgentFromContext(ctx)
	}
	e.audit.Emit(event)
}

// issueTokens mints the access/refresh pair for a fully authenticated
// account, persists the refresh record, and registers a session.
func (e *Engine) issueTokens(ctx context.Context, account *store.Account) (*TokenPair, uuid.UUID, error) {
	now := time.Now()

	refreshValue := uuid.NewString()
	record := store.RefreshToken{
		ID:        uuid.New(),
		AccountID: account.ID,
		TokenHash: store.HashToken(refreshValue),
		ExpiresAt: now.Add(e.cfg.RefreshTTL),
		CreatedAt: now,
	}
	if err := e.tokens.Insert(ctx, record); err != nil {
		return nil, uuid.Nil, err
	}

	access, err := e.jwt.IssueAccess(account.ID.String(), account.Email, account.Roles)
	if err != nil {
		return nil, uuid.Nil, err
	}

	sessionID := uuid.New()
	err = e.sessions.Create(ctx, session.Record{
		ID:               sessionID,
		AccountID:        account.ID,
		RefreshTokenHash: record.TokenHash,
		IP:               clientIPFromContext(ctx),
		UserAgent:        userAgentFromContext(ctx),
		CreatedAt:        now,
	})
	if err != nil {
		// The refresh token is already durable; a session registry
		// blip must not fail the login.
		e.log.Warn("session registration failed", zap.Error(err))
	} else {
		e.metrics.SessionsCreated.Inc()
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshValue,
		TokenType:    "Bearer",
		ExpiresIn:    int64(e.cfg.AccessTTL / time.Second),
	}, sessionID, nil
}
