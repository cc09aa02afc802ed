package geogate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goGeoGate/geo"
	"github.com/MrEthical07/goGeoGate/internal"
)

func newTestPendingStore(t *testing.T) (*pendingVerificationStore, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	return newPendingVerificationStore(rdb), rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

func testPendingRecord(accountID, code string) *pendingVerificationRecord {
	return &pendingVerificationRecord{
		AccountID: accountID,
		CodeHash:  internal.HashCode(code),
		Tier:      TierStepUpMedium,
		ExpiresAt: time.Now().Add(10 * time.Minute).Unix(),
		Candidate: geo.Coordinate{Lat: 19.0760, Lon: 72.8777, AccuracyMeters: 5000, Source: geo.SourceIPGeo},
		HasClient: false,
	}
}

func TestPendingConsumeIsSingleUse(t *testing.T) {
	store, _, done := newTestPendingStore(t)
	defer done()

	if err := store.Save(context.Background(), "chal-1", testPendingRecord("acct-1", "123456"), 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	record, err := store.Consume(context.Background(), "chal-1", internal.HashCode("123456"), 5)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if record.AccountID != "acct-1" {
		t.Fatalf("unexpected account id %q", record.AccountID)
	}
	if record.Candidate.Lat != 19.0760 || record.Candidate.Lon != 72.8777 {
		t.Fatalf("candidate coordinate lost in round trip: %+v", record.Candidate)
	}

	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("123456"), 5); !errors.Is(err, errPendingNotFound) {
		t.Fatalf("expected errPendingNotFound on replay, got %v", err)
	}
}

func TestPendingWrongCodeCountsAttempts(t *testing.T) {
	store, rdb, done := newTestPendingStore(t)
	defer done()

	if err := store.Save(context.Background(), "chal-1", testPendingRecord("acct-1", "123456"), 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("000000"), 2); !errors.Is(err, errPendingCodeMismatch) {
		t.Fatalf("expected errPendingCodeMismatch, got %v", err)
	}
	if exists := rdb.Exists(context.Background(), "gpc:chal-1").Val(); exists != 1 {
		t.Fatal("expected challenge to survive first failed attempt")
	}

	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("000000"), 2); !errors.Is(err, errPendingAttemptsExceeded) {
		t.Fatalf("expected errPendingAttemptsExceeded, got %v", err)
	}
	if exists := rdb.Exists(context.Background(), "gpc:chal-1").Val(); exists != 0 {
		t.Fatal("expected challenge to be deleted after attempt exhaustion")
	}

	// Destroyed challenge rejects even the right code.
	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("123456"), 2); !errors.Is(err, errPendingNotFound) {
		t.Fatalf("expected errPendingNotFound, got %v", err)
	}
}

func TestPendingSaveSupersedesPriorChallenge(t *testing.T) {
	store, rdb, done := newTestPendingStore(t)
	defer done()

	if err := store.Save(context.Background(), "chal-1", testPendingRecord("acct-1", "111111"), 10*time.Minute); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := store.Save(context.Background(), "chal-2", testPendingRecord("acct-1", "222222"), 10*time.Minute); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if exists := rdb.Exists(context.Background(), "gpc:chal-1").Val(); exists != 0 {
		t.Fatal("expected the first challenge to be revoked by the second")
	}
	if exists := rdb.Exists(context.Background(), "gpc:chal-2").Val(); exists != 1 {
		t.Fatal("expected the second challenge to be live")
	}

	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("111111"), 5); !errors.Is(err, errPendingNotFound) {
		t.Fatalf("expected superseded token to be rejected, got %v", err)
	}

	if _, err := store.Consume(context.Background(), "chal-2", internal.HashCode("222222"), 5); err != nil {
		t.Fatalf("expected the live challenge to consume, got %v", err)
	}
}

func TestPendingSupersedeIsPerAccount(t *testing.T) {
	store, _, done := newTestPendingStore(t)
	defer done()

	if err := store.Save(context.Background(), "chal-a", testPendingRecord("acct-a", "111111"), 10*time.Minute); err != nil {
		t.Fatalf("Save acct-a failed: %v", err)
	}
	if err := store.Save(context.Background(), "chal-b", testPendingRecord("acct-b", "222222"), 10*time.Minute); err != nil {
		t.Fatalf("Save acct-b failed: %v", err)
	}

	if _, err := store.Consume(context.Background(), "chal-a", internal.HashCode("111111"), 5); err != nil {
		t.Fatalf("acct-a challenge should be unaffected by acct-b issuance: %v", err)
	}
}

func TestPendingExpiredRecordRejected(t *testing.T) {
	store, _, done := newTestPendingStore(t)
	defer done()

	record := testPendingRecord("acct-1", "123456")
	record.ExpiresAt = time.Now().Add(-time.Minute).Unix()

	// Long redis TTL, already-past logical expiry: the embedded
	// timestamp wins.
	if err := store.Save(context.Background(), "chal-1", record, 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := store.Consume(context.Background(), "chal-1", internal.HashCode("123456"), 5); !errors.Is(err, errPendingNotFound) {
		t.Fatalf("expected errPendingNotFound for expired challenge, got %v", err)
	}
}

func TestPendingCancelIsIdempotent(t *testing.T) {
	store, rdb, done := newTestPendingStore(t)
	defer done()

	if err := store.Save(context.Background(), "chal-1", testPendingRecord("acct-1", "123456"), 10*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Cancel(context.Background(), "chal-1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := store.Cancel(context.Background(), "chal-1"); err != nil {
		t.Fatalf("second Cancel failed: %v", err)
	}
	if exists := rdb.Exists(context.Background(), "gpc:chal-1", "gpa:acct-1").Val(); exists != 0 {
		t.Fatal("expected challenge and account index to be gone")
	}
}
