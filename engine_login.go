package authcore

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/internal/metrics"
	"github.com/mkarpis/authcore/internal/rate"
	"github.com/mkarpis/authcore/store"
)

// Login verifies an email/password pair. Accounts with an active
// second factor receive a short-lived MFA correlator instead of
// tokens; VerifyMFA completes the exchange. Unknown accounts and
// wrong passwords are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	addr := clientIPFromContext(ctx)
	if !e.gate.Allow(ctx, rate.ClassLogin, addr) {
		e.metrics.RateLimited.WithLabelValues(rate.ClassLogin).Inc()
		return nil, ErrRateLimited
	}

	account, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeFailed).Inc()
			e.emit(ctx, AuditEvent{Kind: audit.KindLoginFailed, Email: email})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if account.Locked {
		e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeLocked).Inc()
		e.emit(ctx, AuditEvent{
			Kind:      audit.KindLoginFailed,
			AccountID: account.ID.String(),
			Email:     account.Email,
			Detail:    map[string]string{"reason": "locked"},
		})
		return nil, ErrAccountLocked
	}

	match, err := e.hasher.Verify(plaintext, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, e.recordFailure(ctx, account)
	}

	if err := e.accounts.RecordLoginSuccess(ctx, account.ID); err != nil {
		return nil, err
	}

	if account.MFAEnabled {
		token, err := e.challenges.Issue(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeMFARequired).Inc()
		return &LoginResult{MFARequired: true, MFAToken: token}, nil
	}

	pair, sessionID, err := e.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindLoginSuccess,
		AccountID: account.ID.String(),
		Email:     account.Email,
		SessionID: sessionID.String(),
		Success:   true,
	})
	return &LoginResult{Tokens: pair, SessionID: sessionID}, nil
}

// recordFailure bumps the failure counter and reports either a plain
// credential error or, on the attempt that crosses the threshold, the
// lock.
func (e *Engine) recordFailure(ctx context.Context, account *store.Account) error {
	attempts, locked, err := e.accounts.RecordLoginFailure(ctx, account.ID, e.cfg.LockoutThreshold)
	if err != nil {
		return err
	}

	e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeFailed).Inc()
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindLoginFailed,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})

	if locked {
		e.metrics.AccountLockouts.Inc()
		e.log.Warn("account locked after repeated failures",
			zap.String("account_id", account.ID.String()),
			zap.Int("attempts", attempts))
		e.emit(ctx, AuditEvent{
			Kind:      audit.KindAccountLocked,
			AccountID: account.ID.String(),
			Email:     account.Email,
		})
		return ErrAccountLocked
	}
	return ErrInvalidCredentials
}

// UnlockAccount clears a lockout and resets the failure counter. This
// is an operator action; the engine never unlocks on its own.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if err := e.accounts.Unlock(ctx, account.ID); err != nil {
		return err
	}
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindAccountUnlocked,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
	})
	return nil
}
