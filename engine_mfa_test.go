package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/totp"
)

// enrollMFA walks an account through setup and activation and returns
// the secret plus the one-time backup codes.
func enrollMFA(t *testing.T, env *testEnv, accountID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := env.engine.SetupMFA(ctx, accountID)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	if setup.Secret == "" || setup.ProvisioningURI == "" {
		t.Fatal("expected provisioning material")
	}

	code, err := totp.Code(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("derive code: %v", err)
	}
	activation, err := env.engine.ActivateMFA(ctx, accountID, code)
	if err != nil {
		t.Fatalf("ActivateMFA failed: %v", err)
	}
	if len(activation.BackupCodes) != 10 {
		t.Fatalf("got %d backup codes, want 10", len(activation.BackupCodes))
	}
	return setup.Secret, activation.BackupCodes
}

func TestMFALoginEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	secret, _ := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.MFARequired || result.MFAToken == "" {
		t.Fatal("expected an MFA challenge")
	}
	if result.Tokens != nil {
		t.Fatal("tokens must not be issued before the second factor")
	}

	code, err := totp.Code(secret, time.Now())
	if err != nil {
		t.Fatalf("derive code: %v", err)
	}
	final, err := env.engine.VerifyMFA(ctx, result.MFAToken, code)
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if final.Tokens == nil || final.Tokens.AccessToken == "" {
		t.Fatal("expected tokens after second factor")
	}
	env.waitForAudit(t, audit.KindMFAVerified, audit.KindLoginSuccess)
}

func TestMFAChallengeSingleUse(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	secret, _ := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	code, _ := totp.Code(secret, time.Now())
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, code); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, code); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("replayed correlator: got %v, want ErrTokenInvalid", err)
	}
}

func TestMFAChallengeBurnsOnWrongCode(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	secret, _ := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, "000000"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong code: got %v, want ErrInvalidCredentials", err)
	}
	// The correlator is consumed either way; a retry needs a fresh
	// login.
	code, _ := totp.Code(secret, time.Now())
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, code); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("after burn: got %v, want ErrTokenInvalid", err)
	}
}

func TestMFAChallengeExpires(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	secret, _ := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	env.redis.FastForward(5*time.Minute + time.Second)

	code, _ := totp.Code(secret, time.Now())
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, code); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expired correlator: got %v, want ErrTokenInvalid", err)
	}
}

func TestBackupCodeLogin(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	_, codes := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	final, err := env.engine.VerifyMFA(ctx, result.MFAToken, codes[0])
	if err != nil {
		t.Fatalf("backup code verify: %v", err)
	}
	if final.Tokens == nil {
		t.Fatal("expected tokens")
	}

	remaining, err := env.engine.RemainingBackupCodes(ctx, id.String())
	if err != nil {
		t.Fatalf("RemainingBackupCodes failed: %v", err)
	}
	if remaining != 9 {
		t.Fatalf("remaining %d, want 9", remaining)
	}

	// The burned code never works again.
	again, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if _, err := env.engine.VerifyMFA(ctx, again.MFAToken, codes[0]); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("reused backup code: got %v, want ErrInvalidCredentials", err)
	}
}

func TestBackupCodeCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	_, codes := enrollMFA(t, env, id.String())
	ctx := context.Background()

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, strings.ToLower(codes[0])); err != nil {
		t.Fatalf("lower-cased backup code: %v", err)
	}
}

func TestRegenerateBackupCodesInvalidatesOld(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	_, oldCodes := enrollMFA(t, env, id.String())
	ctx := context.Background()

	newCodes, err := env.engine.RegenerateBackupCodes(ctx, id.String())
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(newCodes) != 10 {
		t.Fatalf("got %d codes, want 10", len(newCodes))
	}

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.engine.VerifyMFA(ctx, result.MFAToken, oldCodes[0]); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old code after regeneration: got %v, want ErrInvalidCredentials", err)
	}
}

func TestSetupRequiresInactiveMFA(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	enrollMFA(t, env, id.String())

	if _, err := env.engine.SetupMFA(context.Background(), id.String()); !errors.Is(err, ErrMFAAlreadyEnabled) {
		t.Fatalf("got %v, want ErrMFAAlreadyEnabled", err)
	}
}

func TestActivateRequiresSetup(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")

	if _, err := env.engine.ActivateMFA(context.Background(), id.String(), "123456"); !errors.Is(err, ErrMFANotProvisioned) {
		t.Fatalf("got %v, want ErrMFANotProvisioned", err)
	}
}

func TestActivateRejectsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	ctx := context.Background()

	if _, err := env.engine.SetupMFA(ctx, id.String()); err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	if _, err := env.engine.ActivateMFA(ctx, id.String(), "000000"); !errors.Is(err, ErrMFACodeInvalid) {
		t.Fatalf("got %v, want ErrMFACodeInvalid", err)
	}
}

func TestDisableMFA(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	secret, _ := enrollMFA(t, env, id.String())
	ctx := context.Background()

	code, _ := totp.Code(secret, time.Now())
	if err := env.engine.DisableMFA(ctx, id.String(), code); err != nil {
		t.Fatalf("DisableMFA failed: %v", err)
	}

	result, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MFARequired {
		t.Fatal("second factor should be gone")
	}
	if _, err := env.engine.RemainingBackupCodes(ctx, id.String()); !errors.Is(err, ErrMFANotEnabled) {
		t.Fatalf("got %v, want ErrMFANotEnabled", err)
	}
}
