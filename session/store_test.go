package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, 7*24*time.Hour), mr
}

func TestCreateGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	record := Record{
		ID:        uuid.New(),
		AccountID: uuid.New(),
		IP:        "203.0.113.9",
		UserAgent: "cli/1.0",
	}
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, record.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccountID != record.AccountID || got.IP != record.IP || got.UserAgent != record.UserAgent {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.LastSeenAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", got)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestInvalidateIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	record := Record{ID: uuid.New(), AccountID: uuid.New()}
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Invalidate(ctx, record.ID); err != nil {
		t.Fatalf("first invalidate: %v", err)
	}
	if err := s.Invalidate(ctx, record.ID); err != nil {
		t.Fatalf("second invalidate should be a no-op: %v", err)
	}
	if _, err := s.Get(ctx, record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestInvalidateAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := s.Create(ctx, Record{ID: uuid.New(), AccountID: accountID}); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}
	other := Record{ID: uuid.New(), AccountID: uuid.New()}
	if err := s.Create(ctx, other); err != nil {
		t.Fatalf("create other: %v", err)
	}

	dropped, err := s.InvalidateAll(ctx, accountID)
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if dropped != 3 {
		t.Fatalf("dropped %d, want 3", dropped)
	}
	records, err := s.List(ctx, accountID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("account still has %d sessions", len(records))
	}
	if _, err := s.Get(ctx, other.ID); err != nil {
		t.Fatalf("unrelated session should survive: %v", err)
	}
}

func TestListPrunesExpiredRecords(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	live := Record{ID: uuid.New(), AccountID: accountID}
	dead := Record{ID: uuid.New(), AccountID: accountID}
	for _, record := range []Record{live, dead} {
		if err := s.Create(ctx, record); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Expire one record behind the index's back.
	mr.Del(recordPrefix + dead.ID.String())

	records, err := s.List(ctx, accountID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 1 || records[0].ID != live.ID {
		t.Fatalf("got %d records, want the one live session", len(records))
	}
}

func TestTouchExtendsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	record := Record{ID: uuid.New(), AccountID: uuid.New()}
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.FastForward(6 * 24 * time.Hour)
	if err := s.Touch(ctx, record.ID); err != nil {
		t.Fatalf("touch: %v", err)
	}
	mr.FastForward(6 * 24 * time.Hour)
	if _, err := s.Get(ctx, record.ID); err != nil {
		t.Fatalf("session should still be alive after touch: %v", err)
	}
}

func TestRebindSwapsRefreshHash(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	accountID := uuid.New()

	record := Record{ID: uuid.New(), AccountID: accountID, RefreshTokenHash: "old"}
	if err := s.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Rebind(ctx, record.ID, "new"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	found, err := s.FindByRefreshHash(ctx, accountID, "new")
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if found.ID != record.ID {
		t.Fatalf("found %s, want %s", found.ID, record.ID)
	}
	if _, err := s.FindByRefreshHash(ctx, accountID, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old hash should be unbound, got %v", err)
	}
}
