package authcore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mkarpis/authcore/internal/audit"
	"github.com/mkarpis/authcore/password"
	"github.com/mkarpis/authcore/store"
	"github.com/mkarpis/authcore/store/memory"
)

type testEnv struct {
	engine   *Engine
	accounts *memory.AccountStore
	tokens   *memory.RefreshTokenStore
	redis    *miniredis.Miniredis
	sink     *audit.ChannelSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	accounts := memory.NewAccountStore()
	tokens := memory.NewRefreshTokenStore()
	sink := audit.NewChannelSink(64)

	engine, err := New().
		WithRedis(client).
		WithAccountStore(accounts).
		WithRefreshTokenStore(tokens).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, accounts: accounts, tokens: tokens, redis: mr, sink: sink}
}

func (env *testEnv) seedAccount(t *testing.T, email, plaintext string) uuid.UUID {
	t.Helper()
	digest, err := env.engine.hasher.Hash(plaintext)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	id := uuid.New()
	env.accounts.Put(store.Account{
		ID:           id,
		Email:        email,
		PasswordHash: digest,
		Roles:        []string{"user"},
	})
	return id
}

// waitForAudit blocks until an event of each wanted kind has been
// delivered. Dispatch is asynchronous, so tests must wait rather than
// drain.
func (env *testEnv) waitForAudit(t *testing.T, wanted ...string) {
	t.Helper()
	missing := make(map[string]bool, len(wanted))
	for _, kind := range wanted {
		missing[kind] = true
	}
	deadline := time.After(2 * time.Second)
	for len(missing) > 0 {
		select {
		case event := <-env.sink.Events():
			delete(missing, event.Kind)
		case <-deadline:
			t.Fatalf("audit events never arrived: %v", missing)
		}
	}
}

func TestLoginReturnsTokens(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")

	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.MFARequired {
		t.Fatal("expected no MFA challenge for account without a second factor")
	}
	if result.Tokens == nil || result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.SessionID == uuid.Nil {
		t.Fatal("expected a registered session")
	}

	identity, err := env.engine.Validate(context.Background(), result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if identity.Email != "alice@example.com" {
		t.Fatalf("identity email %q", identity.Email)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")

	_, err := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginUnknownAccountIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")

	_, errUnknown := env.engine.Login(context.Background(), "nobody@example.com", "whatever")
	_, errWrong := env.engine.Login(context.Background(), "alice@example.com", "wrong")
	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("unknown=%v wrong=%v, both should be ErrInvalidCredentials", errUnknown, errWrong)
	}
}

func TestLockoutAfterFiveFailures(t *testing.T) {
	env := newTestEnv(t)
	id := env.seedAccount(t, "alice@example.com", "correct-password-123")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		_, err := env.engine.Login(ctx, "alice@example.com", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d: got %v", i, err)
		}
	}
	// The fifth failure crosses the threshold.
	if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("fifth failure: got %v, want ErrAccountLocked", err)
	}

	// The lock is sticky: the correct password no longer helps.
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("after lock: got %v, want ErrAccountLocked", err)
	}

	if err := env.engine.UnlockAccount(ctx, id.String()); err != nil {
		t.Fatalf("UnlockAccount failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}

	env.waitForAudit(t, audit.KindAccountLocked, audit.KindAccountUnlocked)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	// Four more failures start from zero again.
	for i := 0; i < 4; i++ {
		if _, err := env.engine.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("failure %d after reset: got %v", i+1, err)
		}
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")
	ctx := WithClientIP(context.Background(), "198.51.100.40")

	for i := 0; i < 10; i++ {
		env.engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := env.engine.Login(ctx, "alice@example.com", "correct-password-123"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("eleventh attempt: got %v, want ErrRateLimited", err)
	}

	// A different source address is unaffected.
	other := WithClientIP(context.Background(), "198.51.100.41")
	if _, err := env.engine.Login(other, "alice@example.com", "correct-password-123"); err != nil {
		// Failure counter has climbed from the wrong passwords above.
		if !errors.Is(err, ErrAccountLocked) {
			t.Fatalf("other address: got %v", err)
		}
	}
}

func TestLoginGateFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.seedAccount(t, "alice@example.com", "correct-password-123")
	env.redis.Close()

	// With Redis down the gate must admit; session registration also
	// degrades without failing the login.
	result, err := env.engine.Login(context.Background(), "alice@example.com", "correct-password-123")
	if err != nil {
		t.Fatalf("login with degraded redis: %v", err)
	}
	if result.Tokens == nil {
		t.Fatal("expected tokens despite registry degradation")
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrBuilderIncomplete) {
		t.Fatalf("got %v, want ErrBuilderIncomplete", err)
	}
}

func TestBuildHonorsArgon2Config(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	build := func(cfg password.Config) (*Engine, error) {
		return New().
			WithConfig(Config{Argon2: cfg}).
			WithRedis(client).
			WithAccountStore(memory.NewAccountStore()).
			WithRefreshTokenStore(memory.NewRefreshTokenStore()).
			Build()
	}

	if _, err := build(password.Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); err == nil {
		t.Fatal("expected Build to reject sub-minimum argon2 memory")
	}

	tuned := password.Config{Memory: 32 * 1024, Time: 3, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	engine, err := build(tuned)
	if err != nil {
		t.Fatalf("Build with tuned argon2 params: %v", err)
	}
	t.Cleanup(engine.Close)

	// The configured costs must end up in freshly minted digests.
	digest, err := engine.hasher.Hash("correct-password-123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.Contains(digest, "m=32768,t=3,p=1") {
		t.Fatalf("digest does not carry tuned parameters: %s", digest)
	}
}

func TestPublicKeyPEM(t *testing.T) {
	env := newTestEnv(t)
	pem, err := env.engine.PublicKeyPEM()
	if err != nil {
		t.Fatalf("PublicKeyPEM failed: %v", err)
	}
	if pem == "" {
		t.Fatal("expected PEM output")
	}
}
