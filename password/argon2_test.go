package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := testHasher(t)

	digest, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(digest, "$argon2id$") {
		t.Fatalf("unexpected digest format: %s", digest)
	}

	ok, err := h.Verify("correct horse battery staple", digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected matching plaintext to verify")
	}

	ok, err = h.Verify("wrong password", digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("expected mismatching plaintext to fail")
	}
}

func TestHashProducesUniqueSalts(t *testing.T) {
	h := testHasher(t)

	first, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Fatal("expected distinct digests for the same plaintext")
	}
}

func TestVerifyRejectsMalformedDigests(t *testing.T) {
	h := testHasher(t)

	cases := []string{
		"",
		"not a hash",
		"$argon2id$v=19$m=8192,t=1,p=1$bad!!salt$AAAA",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$AAAA",
	}
	for _, digest := range cases {
		if _, err := h.Verify("anything", digest); err == nil {
			t.Fatalf("expected error for digest %q", digest)
		}
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := NewArgon2(Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	if _, err := NewArgon2(Config{Memory: 8192, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16}); err == nil {
		t.Fatal("expected zero time cost to be rejected")
	}
	if _, err := NewArgon2(DefaultConfig()); err != nil {
		t.Fatalf("expected default config to validate: %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := NewArgon2(Config{Memory: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	digest, err := weak.Hash("some long password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	strong, err := NewArgon2(DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	needs, err := strong.NeedsRehash(digest)
	if err != nil {
		t.Fatalf("NeedsRehash failed: %v", err)
	}
	if !needs {
		t.Fatal("expected weaker digest to need rehash")
	}
}
