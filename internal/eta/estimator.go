package eta

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/example/medride/internal/models"
	"github.com/example/medride/internal/observability"
	"github.com/example/medride/internal/storage"
)

var (
	// ErrStaleBooking rejects samples for completed or cancelled bookings.
	ErrStaleBooking = errors.New("booking is terminal")
	// ErrMalformedSample rejects samples missing required fields.
	ErrMalformedSample = errors.New("malformed location sample")
	// ErrRouteUnavailable marks a routing collaborator failure. It never
	// fails a sample; the ETA is simply absent for that cycle.
	ErrRouteUnavailable = errors.New("route unavailable")
)

// Emitter is the broadcaster surface the estimator needs.
type Emitter interface {
	EmitLocation(b *models.Booking, loc models.Coord, etaMinutes *int) models.LocationUpdate
}

// Publisher forwards accepted samples to the ingest pipeline (kafka).
type Publisher interface {
	PublishUpdate(ctx context.Context, upd models.LocationUpdate) error
}

// LastCache stores the most recent location per booking (redis).
type LastCache interface {
	SetLast(ctx context.Context, upd models.LocationUpdate) error
}

// Estimator consumes driver position samples, derives an ETA from the
// booking's current status, persists the two live fields and republishes
// a location event. Stateless per sample: last successfully processed
// sample wins.
type Estimator struct {
	Store  storage.BookingStore
	Routes RouteClient // nil means haversine fallback
	Legs   *Cache      // optional pickup->dropoff leg cache
	Emit   Emitter
	Kafka  Publisher // optional
	Last   LastCache // optional
	Log    *slog.Logger

	DefaultSpeedMps float64
}

// Ingest processes one sample. Waypoint selection by status:
//
//	pending/confirmed      no ETA
//	assigned/en_route      driver->pickup (reported), pickup->dropoff (trip leg)
//	arrived/in_transit     driver->dropoff
//	completed/cancelled    rejected
func (e *Estimator) Ingest(ctx context.Context, sample models.LocationSample) error {
	if sample.BookingID == "" || sample.DriverEmail == "" {
		observability.SamplesRejected.WithLabelValues("malformed").Inc()
		return ErrMalformedSample
	}

	b, err := e.Store.Get(ctx, sample.BookingID)
	if err != nil {
		observability.SamplesRejected.WithLabelValues("unknown_booking").Inc()
		return fmt.Errorf("load booking %s: %w", sample.BookingID, err)
	}
	if b.Terminal() {
		observability.SamplesRejected.WithLabelValues("terminal").Inc()
		e.Log.Info("location sample rejected for terminal booking",
			"booking_id", b.ID, "status", b.Status, "driver", sample.DriverEmail)
		return ErrStaleBooking
	}

	etaMinutes := e.estimate(ctx, b, sample.Location)

	// Persist before emitting: never announce a state change that was
	// not confirmed written.
	if err := e.Store.UpdateLive(ctx, b.ID, sample.Location, etaMinutes); err != nil {
		return fmt.Errorf("update live fields: %w", err)
	}
	loc := sample.Location
	b.VehicleLocation = &loc
	b.ETA = etaMinutes

	upd := e.Emit.EmitLocation(b, sample.Location, etaMinutes)
	observability.SamplesAccepted.Inc()

	if e.Kafka != nil {
		if err := e.Kafka.PublishUpdate(ctx, upd); err != nil {
			e.Log.Warn("location publish failed", "booking_id", b.ID, "error", err)
		}
	}
	if e.Last != nil {
		if err := e.Last.SetLast(ctx, upd); err != nil {
			e.Log.Warn("location cache write failed", "booking_id", b.ID, "error", err)
		}
	}
	return nil
}

func (e *Estimator) estimate(ctx context.Context, b *models.Booking, from models.Coord) *int {
	switch b.Status {
	case models.StatusAssigned, models.StatusEnRoute:
		if b.PickupCoordinates == nil {
			return nil
		}
		eta := e.minutesTo(ctx, b.ID, from, *b.PickupCoordinates)
		// Trip leg for total-trip estimation; fixed per booking, cached.
		if b.DropoffCoordinates != nil {
			e.tripLegSeconds(ctx, b.ID, *b.PickupCoordinates, *b.DropoffCoordinates)
		}
		return eta
	case models.StatusArrived, models.StatusInTransit:
		if b.DropoffCoordinates == nil {
			return nil
		}
		return e.minutesTo(ctx, b.ID, from, *b.DropoffCoordinates)
	default:
		// pending/confirmed: no driver is moving toward anything yet.
		return nil
	}
}

func (e *Estimator) minutesTo(ctx context.Context, bookingID string, from, to models.Coord) *int {
	secs, err := e.routeSeconds(ctx, from, to)
	if err != nil {
		e.Log.Warn("route lookup failed, eta absent this cycle", "booking_id", bookingID, "error", err)
		return nil
	}
	m := int(math.Round(secs / 60))
	return &m
}

func (e *Estimator) tripLegSeconds(ctx context.Context, bookingID string, pickup, dropoff models.Coord) {
	if e.Legs != nil {
		if _, ok := e.Legs.Get(pickup, dropoff); ok {
			return
		}
	}
	secs, err := e.routeSeconds(ctx, pickup, dropoff)
	if err != nil {
		e.Log.Warn("trip leg lookup failed", "booking_id", bookingID, "error", err)
		return
	}
	if e.Legs != nil {
		e.Legs.Set(pickup, dropoff, secs)
	}
}

func (e *Estimator) routeSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	if e.Routes == nil {
		return FallbackSeconds(from, to, e.DefaultSpeedMps), nil
	}
	start := time.Now()
	secs, err := e.Routes.EstimateSeconds(ctx, from, to)
	observability.RouteLookupDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.RouteLookupErrors.Inc()
		return 0, fmt.Errorf("%w: %v", ErrRouteUnavailable, err)
	}
	return secs, nil
}
