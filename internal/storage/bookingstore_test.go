package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/example/medride/internal/models"
)

func seed(t *testing.T, m *MemoryStore, id, createdBy, driver, status string) {
	t.Helper()
	if err := m.Create(context.Background(), &models.Booking{ID: id, CreatedBy: createdBy, DriverEmail: driver, Status: status}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestMemoryStoreListRoleScopes(t *testing.T) {
	m := NewMemoryStore()
	seed(t, m, "b1", "r@x.com", "", models.StatusPending)
	seed(t, m, "b2", "r@x.com", "d@x.com", models.StatusCompleted)
	seed(t, m, "b3", "other@x.com", "d@x.com", models.StatusEnRoute)
	ctx := context.Background()

	all, _ := m.List(ctx, ListQuery{})
	if len(all) != 3 {
		t.Fatalf("admin scope: expected 3, got %d", len(all))
	}
	mine, _ := m.List(ctx, ListQuery{CreatedBy: "r@x.com"})
	if len(mine) != 2 {
		t.Fatalf("rider scope: expected 2, got %d", len(mine))
	}
	assigned, _ := m.List(ctx, ListQuery{DriverEmail: "d@x.com"})
	if len(assigned) != 2 {
		t.Fatalf("driver scope: expected 2, got %d", len(assigned))
	}
	active, _ := m.List(ctx, ListQuery{DriverEmail: "d@x.com", ActiveOnly: true})
	if len(active) != 1 || active[0].ID != "b3" {
		t.Fatalf("active driver scope: got %v", active)
	}
}

func TestMemoryStoreUpdateLive(t *testing.T) {
	m := NewMemoryStore()
	seed(t, m, "b1", "r@x.com", "d@x.com", models.StatusEnRoute)
	ctx := context.Background()

	eta := 10
	if err := m.UpdateLive(ctx, "b1", models.Coord{Lat: 43.65, Lng: -79.38}, &eta); err != nil {
		t.Fatalf("update live: %v", err)
	}
	b, err := m.Get(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.VehicleLocation == nil || b.VehicleLocation.Lng != -79.38 || b.ETA == nil || *b.ETA != 10 {
		t.Fatalf("live fields: %+v", b)
	}

	if err := m.UpdateLive(ctx, "nope", models.Coord{}, nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	m := NewMemoryStore()
	seed(t, m, "b1", "r@x.com", "", models.StatusPending)
	ctx := context.Background()

	b, _ := m.Get(ctx, "b1")
	b.Status = models.StatusCancelled
	again, _ := m.Get(ctx, "b1")
	if again.Status != models.StatusPending {
		t.Fatal("mutating a returned booking must not touch the store")
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	m := NewMemoryStore()
	seed(t, m, "b1", "r@x.com", "", models.StatusPending)
	ctx := context.Background()

	b, err := m.Delete(ctx, "b1")
	if err != nil || b.ID != "b1" {
		t.Fatalf("delete: %v %v", b, err)
	}
	if _, err := m.Get(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := m.Delete(ctx, "b1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}
