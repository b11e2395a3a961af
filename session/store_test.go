package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "sa", 24*time.Hour), mr
}

func TestStoreSaveLoadClear(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := &Session{
		Token:    "token-1",
		UserID:   "u1",
		Username: "alice",
		Profile:  Profile{EmailVerified: true},
	}
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Username != "alice" || !loaded.Profile.EmailVerified {
		t.Fatalf("unexpected loaded session: %+v", loaded)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after clear, got %v", err)
	}
}

func TestStoreSaveReplacesPriorRecord(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, &Session{Token: "first", Username: "alice"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, &Session{Token: "second", Username: "bob"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Token != "second" || loaded.Username != "bob" {
		t.Fatalf("expected replacement, got %+v", loaded)
	}
}

func TestStoreClearIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear of absent record failed: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("second Clear failed: %v", err)
	}
}

func TestStoreLoadAfterTTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewStore(client, "sa", time.Minute)
	ctx := context.Background()

	if err := store.Save(ctx, &Session{Token: "t", Username: "alice"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after TTL expiry, got %v", err)
	}
}
