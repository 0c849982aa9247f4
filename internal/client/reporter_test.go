package client

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/medride/internal/models"
)

func driverBooking(id, driver, status string) *models.Booking {
	return &models.Booking{ID: id, CreatedBy: "r@x.com", DriverEmail: driver, Status: status, CreatedAt: time.Now()}
}

func newReporter(state *State) (*Reporter, *[]models.LocationSample) {
	sent := &[]models.LocationSample{}
	r := &Reporter{
		DriverEmail: "d@x.com",
		State:       state,
		Locate: func(ctx context.Context) (models.Coord, error) {
			return models.Coord{Lat: 43.65, Lng: -79.38}, nil
		},
		Send: func(s models.LocationSample) error {
			*sent = append(*sent, s)
			return nil
		},
		Log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return r, sent
}

func TestReporterSendsForSingleActiveBooking(t *testing.T) {
	state := NewState()
	state.Replace([]*models.Booking{
		driverBooking("b1", "d@x.com", models.StatusEnRoute),
		driverBooking("b2", "d@x.com", models.StatusCompleted),
		driverBooking("b3", "other@x.com", models.StatusEnRoute),
	})
	r, sent := newReporter(state)

	r.Tick(context.Background())

	if len(*sent) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(*sent))
	}
	s := (*sent)[0]
	if s.BookingID != "b1" || s.DriverEmail != "d@x.com" || s.UserEmail != "r@x.com" {
		t.Fatalf("unexpected sample: %+v", s)
	}
}

func TestReporterSkipsWhenNoActiveBooking(t *testing.T) {
	state := NewState()
	state.Replace([]*models.Booking{driverBooking("b1", "d@x.com", models.StatusCancelled)})
	r, sent := newReporter(state)

	r.Tick(context.Background())
	if len(*sent) != 0 {
		t.Fatalf("expected no samples, got %d", len(*sent))
	}
}

func TestReporterSkipsWhenAmbiguous(t *testing.T) {
	state := NewState()
	state.Replace([]*models.Booking{
		driverBooking("b1", "d@x.com", models.StatusEnRoute),
		driverBooking("b2", "d@x.com", models.StatusAssigned),
	})
	r, sent := newReporter(state)

	r.Tick(context.Background())
	if len(*sent) != 0 {
		t.Fatalf("ambiguous active bookings must skip the cycle, got %d samples", len(*sent))
	}
}

func TestReporterStopsAfterStatusGoesTerminal(t *testing.T) {
	state := NewState()
	state.Replace([]*models.Booking{driverBooking("b1", "d@x.com", models.StatusInTransit)})
	r, sent := newReporter(state)

	r.Tick(context.Background())
	if len(*sent) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(*sent))
	}

	done := driverBooking("b1", "d@x.com", models.StatusCompleted)
	state.ApplyUpdated(done)

	r.Tick(context.Background())
	if len(*sent) != 1 {
		t.Fatalf("terminal booking must stop reporting, got %d samples", len(*sent))
	}
}
