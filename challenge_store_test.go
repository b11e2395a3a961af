package stepauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestChallengeStore(t *testing.T) *loginChallengeStore {
	t.Helper()
	_, rdb := newTestRedis(t)
	return newLoginChallengeStore(rdb, "sac")
}

func testChallenge(ttl time.Duration) *loginChallenge {
	return &loginChallenge{
		ID:        "ch-1",
		Factor:    FactorTotp,
		Prompt:    "ingresa el código",
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
}

func TestChallengeStoreBeginAdmitsSingleRecord(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	created, err := store.Begin(ctx, "mgonzalez", testChallenge(time.Minute), time.Minute)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !created {
		t.Fatal("expected first Begin to create the record")
	}

	second := testChallenge(time.Minute)
	second.ID = "ch-2"
	created, err = store.Begin(ctx, "mgonzalez", second, time.Minute)
	if err != nil {
		t.Fatalf("second Begin failed: %v", err)
	}
	if created {
		t.Fatal("expected second Begin refused while a record is pending")
	}

	got, err := store.Get(ctx, "mgonzalez")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != "ch-1" {
		t.Fatalf("expected original record kept, got %q", got.ID)
	}
	if got.Factor != FactorTotp || got.Prompt != "ingresa el código" {
		t.Fatalf("record round trip mismatch: %+v", got)
	}
}

func TestChallengeStoreGetMissing(t *testing.T) {
	store := newTestChallengeStore(t)

	if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChallengeStoreExpiredRecordDeletedOnRead(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	record := testChallenge(-time.Second)
	if _, err := store.Begin(ctx, "mgonzalez", record, time.Minute); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	if _, err := store.Get(ctx, "mgonzalez"); !errors.Is(err, errChallengeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := store.Get(ctx, "mgonzalez"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected record deleted after expiry read, got %v", err)
	}
}

func TestChallengeStoreRecordFailureCountsToBudget(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	if _, err := store.Begin(ctx, "mgonzalez", testChallenge(time.Minute), time.Minute); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		exceeded, err := store.RecordFailure(ctx, "mgonzalez", 3)
		if err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i, err)
		}
		if exceeded {
			t.Fatalf("expected attempt %d within budget", i+1)
		}
	}

	exceeded, err := store.RecordFailure(ctx, "mgonzalez", 3)
	if err != nil {
		t.Fatalf("final RecordFailure failed: %v", err)
	}
	if !exceeded {
		t.Fatal("expected third failure to exhaust the budget")
	}

	if _, err := store.Get(ctx, "mgonzalez"); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected record deleted after exhaustion, got %v", err)
	}
}

func TestChallengeStoreRecordFailureMissing(t *testing.T) {
	store := newTestChallengeStore(t)

	if _, err := store.RecordFailure(context.Background(), "nobody", 3); !errors.Is(err, errChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChallengeStoreDelete(t *testing.T) {
	store := newTestChallengeStore(t)
	ctx := context.Background()

	if _, err := store.Begin(ctx, "mgonzalez", testChallenge(time.Minute), time.Minute); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	deleted, err := store.Delete(ctx, "mgonzalez")
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !deleted {
		t.Fatal("expected record deleted")
	}

	deleted, err = store.Delete(ctx, "mgonzalez")
	if err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if deleted {
		t.Fatal("expected nothing left to delete")
	}
}

func TestChallengeEncodingRejectsUnknownVersion(t *testing.T) {
	encoded, err := encodeLoginChallenge(testChallenge(time.Minute))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	encoded[0] = 99
	if _, err := decodeLoginChallenge(encoded); err == nil {
		t.Fatal("expected unknown version rejected")
	}
}

func TestChallengeEncodingRejectsTruncation(t *testing.T) {
	encoded, err := encodeLoginChallenge(testChallenge(time.Minute))
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	for cut := 1; cut < len(encoded); cut++ {
		if _, err := decodeLoginChallenge(encoded[:cut]); err == nil {
			t.Fatalf("expected decode failure at %d bytes", cut)
		}
	}
}
