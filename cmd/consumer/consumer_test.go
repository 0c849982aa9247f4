package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/medride/internal/models"
)

// fakeCache implements LastUpdater for tests
type fakeCache struct {
	fail  int // number of times to fail before succeeding
	calls int
	last  models.LocationUpdate
}

func (f *fakeCache) SetLast(ctx context.Context, upd models.LocationUpdate) error {
	f.calls++
	if f.calls <= f.fail {
		return errors.New("cache fail")
	}
	f.last = upd
	return nil
}

func TestUpdateCacheWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeCache{fail: 1}
	upd := models.LocationUpdate{BookingID: "b1", Location: models.Coord{Lat: 1, Lng: 2}, Seq: 7}
	ctx := context.Background()
	start := time.Now()
	if err := updateCacheWithRetry(ctx, f, upd, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls < 2 {
		t.Fatalf("expected retries, got calls=%d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
	if f.last.Seq != 7 {
		t.Fatalf("expected stored seq 7, got %d", f.last.Seq)
	}
}

func TestUpdateCacheWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeCache{fail: 5}
	upd := models.LocationUpdate{BookingID: "b1", Location: models.Coord{Lat: 1, Lng: 2}}
	ctx := context.Background()
	if err := updateCacheWithRetry(ctx, f, upd, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
}
