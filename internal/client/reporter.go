package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/medride/internal/models"
)

// Locator samples the device position.
type Locator func(ctx context.Context) (models.Coord, error)

// SampleSender submits one location sample; satisfied by
// (*Subscriber).SendSample.
type SampleSender func(sample models.LocationSample) error

// Reporter is the driver-side sampling loop: on a fixed interval it looks
// for the driver's single active booking in the reconciled state and
// submits a position sample for it. With zero or more than one
// non-terminal assigned booking the tick is skipped, so the server never
// has to guess which trip a sample belongs to. Status transitions are
// picked up naturally because the state is consulted on every tick; once
// the booking goes terminal, reporting stops on its own.
type Reporter struct {
	DriverEmail string
	State       *State
	Locate      Locator
	Send        SampleSender
	Interval    time.Duration
	Log         *slog.Logger
}

func (r *Reporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one sampling cycle. Exposed for tests and for an immediate
// first report after connect.
func (r *Reporter) Tick(ctx context.Context) {
	b, ok := r.activeBooking()
	if !ok {
		return
	}
	loc, err := r.Locate(ctx)
	if err != nil {
		r.Log.Warn("location sampling failed", "error", err)
		return
	}
	sample := models.LocationSample{
		BookingID:   b.ID,
		Location:    loc,
		UserEmail:   b.CreatedBy,
		DriverEmail: r.DriverEmail,
	}
	if err := r.Send(sample); err != nil {
		r.Log.Warn("location sample send failed", "booking_id", b.ID, "error", err)
	}
}

func (r *Reporter) activeBooking() (*models.Booking, bool) {
	var active *models.Booking
	for _, b := range r.State.Bookings() {
		if b.DriverEmail != r.DriverEmail || b.Terminal() {
			continue
		}
		if active != nil {
			// ambiguous; skip this cycle rather than report the wrong trip
			return nil, false
		}
		active = b
	}
	return active, active != nil
}
