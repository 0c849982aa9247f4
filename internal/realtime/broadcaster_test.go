package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/example/medride/internal/auth"
	"github.com/example/medride/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFrames(t *testing.T, fc *fakeConn, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if fc.frameCount() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d frames, have %d", n, fc.frameCount())
}

func noMoreFrames(t *testing.T, fc *fakeConn, have int) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	if fc.frameCount() != have {
		t.Fatalf("expected %d frames, got %d", have, fc.frameCount())
	}
}

func joinAll(r *Registry, s *Session) {
	r.Register(s)
	for _, room := range AutoJoinRooms(s.Identity) {
		r.Join(s.ID, room)
	}
}

func TestEmitBeforeStartIsDropped(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	s, fc := newTestSession("a@x.com", auth.RoleAdmin)
	defer s.Close()
	joinAll(reg, s)

	b.EmitBooking(EventBookingCreated, &models.Booking{ID: "b1", CreatedBy: "r@x.com"})
	noMoreFrames(t, fc, 0)

	b.Start()
	b.EmitBooking(EventBookingCreated, &models.Booking{ID: "b1", CreatedBy: "r@x.com"})
	waitFrames(t, fc, 1)
}

func TestEmitReachesRiderAndAdminsOnly(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	rider, riderConn := newTestSession("r@x.com", auth.RoleRider)
	admin, adminConn := newTestSession("a@x.com", auth.RoleAdmin)
	driver, driverConn := newTestSession("d@x.com", auth.RoleDriver)
	defer rider.Close()
	defer admin.Close()
	defer driver.Close()
	joinAll(reg, rider)
	joinAll(reg, admin)
	joinAll(reg, driver)

	b.EmitBooking(EventBookingCreated, &models.Booking{ID: "b1", CreatedBy: "r@x.com"})

	waitFrames(t, riderConn, 1)
	waitFrames(t, adminConn, 1)
	noMoreFrames(t, driverConn, 0)
}

func TestReassignmentRetargetsDriverRoom(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	d1, d1Conn := newTestSession("d1@x.com", auth.RoleDriver)
	d2, d2Conn := newTestSession("d2@x.com", auth.RoleDriver)
	defer d1.Close()
	defer d2.Close()
	joinAll(reg, d1)
	joinAll(reg, d2)

	bk := &models.Booking{ID: "b1", CreatedBy: "r@x.com", DriverEmail: "d1@x.com"}
	b.EmitBooking(EventBookingUpdated, bk)
	waitFrames(t, d1Conn, 1)
	noMoreFrames(t, d2Conn, 0)

	bk.DriverEmail = "d2@x.com"
	b.EmitBooking(EventBookingUpdated, bk)
	waitFrames(t, d2Conn, 1)
	noMoreFrames(t, d1Conn, 1)
}

func TestEmitDedupesAcrossOverlappingRooms(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	// A driver who also created the booking sits in both matching rooms.
	d, dConn := newTestSession("d@x.com", auth.RoleDriver)
	defer d.Close()
	joinAll(reg, d)

	b.EmitBooking(EventBookingUpdated, &models.Booking{ID: "b1", CreatedBy: "d@x.com", DriverEmail: "d@x.com"})
	waitFrames(t, dConn, 1)
	noMoreFrames(t, dConn, 1)
}

func TestEmitAfterDeregisterSkipsSession(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	s, fc := newTestSession("r@x.com", auth.RoleRider)
	defer s.Close()
	joinAll(reg, s)
	reg.Deregister(s.ID)

	b.EmitBooking(EventBookingCreated, &models.Booking{ID: "b1", CreatedBy: "r@x.com"})
	noMoreFrames(t, fc, 0)
}

func TestDeliveryFailureIsIsolated(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	dead, deadConn := newTestSession("r@x.com", auth.RoleRider)
	live, liveConn := newTestSession("a@x.com", auth.RoleAdmin)
	defer dead.Close()
	defer live.Close()
	joinAll(reg, dead)
	joinAll(reg, live)

	// Kill the transport; the writer loop closes the session on the
	// first failed write, and the next emit deregisters it.
	deadConn.mu.Lock()
	deadConn.failWrite = true
	deadConn.mu.Unlock()

	bk := &models.Booking{ID: "b1", CreatedBy: "r@x.com"}
	b.EmitBooking(EventBookingCreated, bk)
	waitFrames(t, liveConn, 1)

	b.EmitBooking(EventBookingUpdated, bk)
	waitFrames(t, liveConn, 2)

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 1 && time.Now().Before(deadline) {
		b.EmitBooking(EventBookingUpdated, bk)
		time.Sleep(10 * time.Millisecond)
	}
	if reg.Len() != 1 {
		t.Fatalf("dead session should have been deregistered, registry has %d", reg.Len())
	}
}

func TestEmitLocationStampsMonotonicSeq(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster(reg, testLogger())
	b.Start()

	a, aConn := newTestSession("a@x.com", auth.RoleAdmin)
	defer a.Close()
	joinAll(reg, a)

	bk := &models.Booking{ID: "b1", CreatedBy: "r@x.com", DriverEmail: "d@x.com"}
	eta := 10
	u1 := b.EmitLocation(bk, models.Coord{Lat: 43.65, Lng: -79.38}, &eta)
	u2 := b.EmitLocation(bk, models.Coord{Lat: 43.66, Lng: -79.39}, nil)
	if u1.Seq != 1 || u2.Seq != 2 {
		t.Fatalf("expected seq 1,2 got %d,%d", u1.Seq, u2.Seq)
	}
	other := b.EmitLocation(&models.Booking{ID: "b2"}, models.Coord{}, nil)
	if other.Seq != 1 {
		t.Fatalf("sequence must be per booking, got %d", other.Seq)
	}

	waitFrames(t, aConn, 2)
	var env Envelope
	if err := json.Unmarshal(aConn.frame(0), &env); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	if env.Event != EventDriverLocation {
		t.Fatalf("expected %s, got %s", EventDriverLocation, env.Event)
	}
	var upd models.LocationUpdate
	if err := json.Unmarshal(env.Data, &upd); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if upd.ETA == nil || *upd.ETA != 10 || upd.Seq != 1 {
		t.Fatalf("unexpected payload: %+v", upd)
	}
}
