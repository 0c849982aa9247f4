package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/example/medride/internal/models"
	"github.com/example/medride/internal/observability"
)

// Broadcaster fans typed events out to every session in the rooms a
// booking addresses. It is constructed once at process start and injected
// into the write path and the location ingest; Start is called only after
// the transport layer is listening. Until then every emit is dropped with
// a logged warning, never queued: delivery is best-effort and a client
// that misses an event recovers by refetching its snapshot on reconnect.
type Broadcaster struct {
	reg *Registry
	log *slog.Logger

	ready atomic.Bool

	mu   sync.Mutex
	seqs map[string]uint64
}

func NewBroadcaster(reg *Registry, log *slog.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log, seqs: make(map[string]uint64)}
}

// Start marks the broadcaster usable. Idempotent.
func (b *Broadcaster) Start() { b.ready.Store(true) }

func (b *Broadcaster) Ready() bool { return b.ready.Load() }

// EmitBooking delivers a booking lifecycle event to user, driver and admin
// rooms. Rooms are recomputed from the booking on every call.
func (b *Broadcaster) EmitBooking(event string, booking *models.Booking) {
	b.deliver(event, booking, booking)
}

// EmitLocation stamps the next per-booking sequence number on the update
// and delivers it to the same rooms a booking event would reach. The
// stamped update is returned so the ingest path can propagate it to the
// sample pipeline.
func (b *Broadcaster) EmitLocation(booking *models.Booking, loc models.Coord, etaMinutes *int) models.LocationUpdate {
	upd := models.LocationUpdate{
		BookingID: booking.ID,
		Location:  loc,
		ETA:       etaMinutes,
		Seq:       b.nextSeq(booking.ID),
	}
	b.deliver(EventDriverLocation, booking, upd)
	return upd
}

func (b *Broadcaster) nextSeq(bookingID string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seqs[bookingID]++
	return b.seqs[bookingID]
}

func (b *Broadcaster) deliver(event string, booking *models.Booking, payload any) {
	if !b.ready.Load() {
		observability.EventsDropped.Inc()
		b.log.Warn("event dropped, broadcaster not ready", "event", event, "booking_id", booking.ID)
		return
	}

	// One delivery per session even when it sits in several matching
	// rooms; downstream reconciliation is idempotent either way.
	seen := make(map[string]struct{})
	for _, room := range RoomsFor(booking) {
		for _, s := range b.reg.MembersOf(room) {
			if _, dup := seen[s.ID]; dup {
				continue
			}
			seen[s.ID] = struct{}{}
			if err := s.SendEvent(event, payload); err != nil {
				// A failed write is an implicit disconnect. Never
				// abort delivery to the remaining members.
				observability.DeliveryFailures.Inc()
				b.log.Warn("delivery failed, dropping session",
					"event", event, "session_id", s.ID, "room", room, "error", err)
				b.reg.Deregister(s.ID)
				s.Close()
			}
		}
	}
	observability.EventsEmitted.WithLabelValues(event).Inc()
}
