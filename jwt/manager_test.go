package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func testManager(t *testing.T, ttl time.Duration) (*Manager, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	m, err := NewManager(Config{
		Issuer:    "authcore-test",
		AccessTTL: ttl,
		Private:   priv,
		Public:    pub,
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m, priv
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	m, _ := testManager(t, 15*time.Minute)

	token, err := m.IssueAccess("acct-1", "alice@example.com", []string{"USER", "AUDITOR"})
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}

	claims, reason, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("ParseAccess failed (%s): %v", reason, err)
	}
	if claims.Subject != "acct-1" {
		t.Fatalf("subject = %q, want acct-1", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "USER" || claims.Roles[1] != "AUDITOR" {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if claims.Issuer != "authcore-test" {
		t.Fatalf("issuer = %q", claims.Issuer)
	}
}

func TestParseClassifiesFailures(t *testing.T) {
	m, _ := testManager(t, time.Minute)
	other, _ := testManager(t, time.Minute)

	if _, reason, err := m.ParseAccess("not.a.token"); err == nil || reason != ReasonMalformed {
		t.Fatalf("expected malformed, got reason=%s err=%v", reason, err)
	}

	foreign, err := other.IssueAccess("acct-1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, reason, err := m.ParseAccess(foreign); err == nil || reason != ReasonBadSignature {
		t.Fatalf("expected bad signature, got reason=%s err=%v", reason, err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m, _ := testManager(t, time.Nanosecond)

	token, err := m.IssueAccess("acct-1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, reason, err := m.ParseAccess(token); err == nil || reason != ReasonExpired {
		t.Fatalf("expected expired, got reason=%s err=%v", reason, err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	issuerA, err := NewManager(Config{Issuer: "a", AccessTTL: time.Minute, Private: priv, Public: pub})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	issuerB, err := NewManager(Config{Issuer: "b", AccessTTL: time.Minute, Private: priv, Public: pub})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := issuerA.IssueAccess("acct-1", "a@b.c", nil)
	if err != nil {
		t.Fatalf("IssueAccess failed: %v", err)
	}
	if _, _, err := issuerB.ParseAccess(token); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}
}
