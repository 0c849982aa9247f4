package client

import (
	"reflect"
	"testing"
	"time"

	"github.com/example/medride/internal/models"
)

func bk(id, status string) *models.Booking {
	return &models.Booking{ID: id, CreatedBy: "r@x.com", Status: status, CreatedAt: time.Now()}
}

func TestApplyUpdatedIsIdempotent(t *testing.T) {
	s := NewState()
	s.Replace([]*models.Booking{bk("b1", models.StatusPending)})

	upd := bk("b1", models.StatusAssigned)
	upd.DriverEmail = "d@x.com"
	s.ApplyUpdated(upd)
	first, _ := s.Get("b1")

	s.ApplyUpdated(upd)
	second, _ := s.Get("b1")

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("applying the same update twice changed state: %+v vs %+v", first, second)
	}
	if second.Status != models.StatusAssigned || second.DriverEmail != "d@x.com" {
		t.Fatalf("update not applied: %+v", second)
	}
}

func TestApplyUpdatedInsertsWhenUnknown(t *testing.T) {
	s := NewState()
	s.ApplyUpdated(bk("b9", models.StatusConfirmed))
	if _, ok := s.Get("b9"); !ok {
		t.Fatal("update for unknown booking must insert")
	}
}

func TestApplyDeletedIsNoopWhenAbsent(t *testing.T) {
	s := NewState()
	s.Replace([]*models.Booking{bk("b1", models.StatusPending)})
	s.ApplyDeleted("nope")
	if s.Len() != 1 {
		t.Fatalf("expected 1 booking, got %d", s.Len())
	}
	s.ApplyDeleted("b1")
	s.ApplyDeleted("b1")
	if s.Len() != 0 {
		t.Fatalf("expected empty state, got %d", s.Len())
	}
}

func TestApplyLocationIgnoredWhenBookingUnknown(t *testing.T) {
	s := NewState()
	applied := s.ApplyLocation(models.LocationUpdate{BookingID: "ghost", Location: models.Coord{Lat: 1, Lng: 2}, Seq: 1})
	if applied {
		t.Fatal("location event must never create a booking")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty state, got %d", s.Len())
	}
}

func TestApplyLocationMergesLiveFieldsOnly(t *testing.T) {
	s := NewState()
	b := bk("b1", models.StatusEnRoute)
	b.DriverEmail = "d@x.com"
	s.Replace([]*models.Booking{b})

	eta := 10
	if !s.ApplyLocation(models.LocationUpdate{BookingID: "b1", Location: models.Coord{Lat: 43.65, Lng: -79.38}, ETA: &eta, Seq: 1}) {
		t.Fatal("expected apply")
	}
	got, _ := s.Get("b1")
	if got.VehicleLocation == nil || got.VehicleLocation.Lat != 43.65 || got.ETA == nil || *got.ETA != 10 {
		t.Fatalf("live fields not merged: %+v", got)
	}
	if got.Status != models.StatusEnRoute || got.DriverEmail != "d@x.com" {
		t.Fatalf("non-live fields must not change: %+v", got)
	}
}

func TestApplyLocationDiscardsStaleSeq(t *testing.T) {
	s := NewState()
	s.Replace([]*models.Booking{bk("b1", models.StatusEnRoute)})

	newer := 5
	older := 9
	s.ApplyLocation(models.LocationUpdate{BookingID: "b1", Location: models.Coord{Lat: 2}, ETA: &newer, Seq: 4})
	if s.ApplyLocation(models.LocationUpdate{BookingID: "b1", Location: models.Coord{Lat: 1}, ETA: &older, Seq: 3}) {
		t.Fatal("stale sequence must be discarded")
	}
	got, _ := s.Get("b1")
	if got.VehicleLocation.Lat != 2 || *got.ETA != 5 {
		t.Fatalf("stale event overwrote newer state: %+v", got)
	}
}

func TestReplaceResetsToSnapshot(t *testing.T) {
	s := NewState()
	s.Replace([]*models.Booking{bk("b1", models.StatusPending), bk("b2", models.StatusConfirmed)})
	s.ApplyDeleted("b1")

	// Reconnect: server snapshot is authoritative, missed deltas included.
	s.Replace([]*models.Booking{bk("b2", models.StatusCompleted), bk("b3", models.StatusPending)})
	if s.Len() != 2 {
		t.Fatalf("expected snapshot of 2, got %d", s.Len())
	}
	if _, ok := s.Get("b1"); ok {
		t.Fatal("b1 should be gone after resync")
	}
	got, _ := s.Get("b2")
	if got.Status != models.StatusCompleted {
		t.Fatalf("snapshot should win: %+v", got)
	}
}

func TestBookingsOrderedNewestFirst(t *testing.T) {
	s := NewState()
	old := bk("old", models.StatusPending)
	old.CreatedAt = time.Now().Add(-time.Hour)
	s.Replace([]*models.Booking{old, bk("new", models.StatusPending)})
	list := s.Bookings()
	if len(list) != 2 || list[0].ID != "new" {
		t.Fatalf("unexpected order: %v", list)
	}
}
