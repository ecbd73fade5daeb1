package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/internal/challenge"
	"github.com/mkarpis/authcore/internal/metrics"
	"github.com/mkarpis/authcore/store"
	"github.com/mkarpis/authcore/totp"
)

// VerifyMFA completes a login that Login answered with an MFA
// correlator. The correlator is consumed on the first attempt, right
// or wrong; a failed code sends the caller back to Login. The code is
// tried as a TOTP value first, then as a backup code. An expired or
// consumed correlator reports ErrTokenInvalid; a mismatched code
// reports ErrInvalidCredentials, indistinguishable from a wrong
// password.
func (e *Engine) VerifyMFA(ctx context.Context, mfaToken, code string) (*LoginResult, error) {
	accountID, err := e.challenges.Consume(ctx, mfaToken)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	account, err := e.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}
	if !account.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	method, ok, err := e.checkSecondFactor(ctx, account, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.metrics.MFAVerifications.WithLabelValues(metrics.OutcomeFailed, method).Inc()
		e.emit(ctx, AuditEvent{
			Kind:      audit.KindMFAFailed,
			AccountID: account.ID.String(),
			Email:     account.Email,
		})
		return nil, ErrInvalidCredentials
	}

	pair, sessionID, err := e.issueTokens(ctx, account)
	if err != nil {
		return nil, err
	}
	e.metrics.MFAVerifications.WithLabelValues(metrics.OutcomeSuccess, method).Inc()
	e.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindMFAVerified,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
		Detail:    map[string]string{"method": method},
	})
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindLoginSuccess,
		AccountID: account.ID.String(),
		Email:     account.Email,
		SessionID: sessionID.String(),
		Success:   true,
	})
	return &LoginResult{Tokens: pair, SessionID: sessionID}, nil
}

// checkSecondFactor tries the TOTP window first, then burns a backup
// code on match. It reports which method the code matched.
func (e *Engine) checkSecondFactor(ctx context.Context, account *store.Account, code string) (string, bool, error) {
	if e.totp.Validate(account.MFASecret, code, time.Now()) {
		return metrics.MethodTOTP, true, nil
	}

	candidate := strings.ToUpper(strings.TrimSpace(code))
	for _, digest := range account.BackupCodeHashes {
		match, err := e.hasher.Verify(candidate, digest)
		if err != nil {
			return metrics.MethodBackup, false, err
		}
		if !match {
			continue
		}
		removed, err := e.accounts.RemoveBackupCodeHash(ctx, account.ID, digest)
		if err != nil {
			return metrics.MethodBackup, false, err
		}
		// A concurrent verification may have burned it first.
		return metrics.MethodBackup, removed, nil
	}
	return metrics.MethodTOTP, false, nil
}

// SetupMFA provisions a pending TOTP secret and returns the material
// the user enrolls with. The second factor stays inactive until
// ActivateMFA proves a code from the authenticator.
func (e *Engine) SetupMFA(ctx context.Context, accountID string) (*MFASetup, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, uri, err := e.totp.Generate(account.Email)
	if err != nil {
		return nil, err
	}
	if err := e.accounts.SetMFASecret(ctx, account.ID, secret); err != nil {
		return nil, err
	}
	return &MFASetup{Secret: secret, ProvisioningURI: uri}, nil
}

// ActivateMFA turns the pending secret live after the caller proves a
// valid TOTP code, and mints the account's backup codes. The plaintext
// codes are returned exactly once.
func (e *Engine) ActivateMFA(ctx context.Context, accountID, code string) (*MFAActivation, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if account.MFASecret == "" {
		return nil, ErrMFANotProvisioned
	}
	if !e.totp.Validate(account.MFASecret, code, time.Now()) {
		return nil, ErrMFACodeInvalid
	}

	codes, hashes, err := e.mintBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := e.accounts.EnableMFA(ctx, account.ID, hashes); err != nil {
		return nil, err
	}
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindMFAEnabled,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
	})
	return &MFAActivation{BackupCodes: codes}, nil
}

// DisableMFA removes the second factor after the caller proves a
// current TOTP code. Backup codes are discarded with it.
func (e *Engine) DisableMFA(ctx context.Context, accountID, code string) error {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.MFAEnabled {
		return ErrMFANotEnabled
	}
	if !e.totp.Validate(account.MFASecret, code, time.Now()) {
		return ErrMFACodeInvalid
	}

	if err := e.accounts.DisableMFA(ctx, account.ID); err != nil {
		return err
	}
	e.emit(ctx, AuditEvent{
		Kind:      audit.KindMFADisabled,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Success:   true,
	})
	return nil
}

// RemainingBackupCodes reports how many unused backup codes the
// account still holds.
func (e *Engine) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if !account.MFAEnabled {
		return 0, ErrMFANotEnabled
	}
	return len(account.BackupCodeHashes), nil
}

// RegenerateBackupCodes replaces every outstanding backup code with a
// fresh set, invalidating the old ones.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	account, err := e.findAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.MFAEnabled {
		return nil, ErrMFANotEnabled
	}

	codes, hashes, err := e.mintBackupCodes()
	if err != nil {
		return nil, err
	}
	if err := e.accounts.ReplaceBackupCodes(ctx, account.ID, hashes); err != nil {
		return nil, err
	}
	return codes, nil
}

func (e *Engine) mintBackupCodes() (codes, hashes []string, err error) {
	codes, err = totp.GenerateBackupCodes(e.cfg.BackupCodeCount, e.cfg.BackupCodeLength)
	if err != nil {
		return nil, nil, err
	}
	hashes = make([]string, len(codes))
	for i, code := range codes {
		hashes[i], err = e.hasher.Hash(code)
		if err != nil {
			return nil, nil, err
		}
	}
	return codes, hashes, nil
}
