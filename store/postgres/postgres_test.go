package postgres

import (
	"errors"
	"testing"

	"github.com/mkarpis/authcore/store"
)

func TestUnavailableWrapsInfraErrors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := unavailable("record login failure", cause)

	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("infra error must match store.ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause must stay in the chain, got %v", err)
	}
	// Infra failures must never read as a lookup miss, or a flaky pool
	// would look like invalid credentials upstream.
	if errors.Is(err, store.ErrAccountNotFound) || errors.Is(err, store.ErrTokenNotFound) {
		t.Fatalf("infra error must not match a not-found sentinel: %v", err)
	}
}
