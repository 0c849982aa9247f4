package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/medride/internal/auth"
	"github.com/example/medride/internal/eta"
	"github.com/example/medride/internal/models"
	"github.com/example/medride/internal/observability"
	"github.com/example/medride/internal/realtime"
	"github.com/example/medride/internal/storage"
)

// LastReader backfills live fields from the location cache on reads.
type LastReader interface {
	Last(ctx context.Context, bookingID string) (models.LocationUpdate, bool, error)
}

type Server struct {
	store      storage.BookingStore
	verifier   auth.Verifier
	registry   *realtime.Registry
	bcast      *realtime.Broadcaster
	estimator  *eta.Estimator
	last       LastReader // optional
	logger     *slog.Logger
	mux        *mux.Router
	upgrader   websocket.Upgrader
	sendBuffer int
}

// Deps carries every collaborator the server needs; the broadcaster and
// estimator are injected rather than looked up ambiently.
type Deps struct {
	Store       storage.BookingStore
	Verifier    auth.Verifier
	Registry    *realtime.Registry
	Broadcaster *realtime.Broadcaster
	Estimator   *eta.Estimator
	Last        LastReader
	Logger      *slog.Logger
	SendBuffer  int
}

func NewServer(d Deps) *Server {
	s := &Server{
		store:      d.Store,
		verifier:   d.Verifier,
		registry:   d.Registry,
		bcast:      d.Broadcaster,
		estimator:  d.Estimator,
		last:       d.Last,
		logger:     d.Logger,
		mux:        mux.NewRouter(),
		sendBuffer: d.SendBuffer,
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings", s.requireAuth(s.handleListBookings)).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{id}", s.requireAuth(s.handleGetBooking)).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings/{id}", s.requireAuth(s.handleUpdateBooking)).Methods("PUT")
	s.mux.HandleFunc("/api/v1/bookings/{id}", s.requireAuth(s.handleDeleteBooking)).Methods("DELETE")
	s.mux.HandleFunc("/internal/driver/locations", s.requireAuth(s.handleDriverLocation)).Methods("POST")
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// handleCreateBooking accepts both authenticated and guest bookings.
// The event is emitted only after the store confirms the write.
func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var b models.Booking
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.PickupAddress == "" || b.DropoffAddress == "" || b.ScheduledDate == "" {
		http.Error(w, "missing required booking fields", http.StatusBadRequest)
		return
	}

	if id, err := s.verifier.Verify(r.Header.Get("Authorization")); err == nil {
		b.CreatedBy = id.Email
	} else {
		if b.GuestName == "" || b.GuestPhone == "" {
			http.Error(w, "guest name and phone required", http.StatusBadRequest)
			return
		}
		b.CreatedBy = models.GuestCreator
	}

	b.ID = uuid.NewString()
	b.Status = models.StatusPending
	if b.AssistanceType == "" {
		b.AssistanceType = "ambulatory"
	}
	if b.PassengerCount == 0 {
		b.PassengerCount = 1
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = "unpaid"
	}
	b.DriverEmail, b.DriverName, b.DriverPhone, b.VehicleInfo = "", "", "", ""
	b.VehicleLocation, b.ETA = nil, nil

	if err := s.store.Create(r.Context(), &b); err != nil {
		s.logger.Error("booking create failed", "error", err)
		http.Error(w, "create failed", http.StatusInternalServerError)
		return
	}
	s.bcast.EmitBooking(realtime.EventBookingCreated, &b)
	writeJSON(w, http.StatusOK, &b)
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	q := storage.ListQuery{ActiveOnly: r.URL.Query().Get("active") == "true"}
	switch id.Role {
	case auth.RoleAdmin:
	case auth.RoleDriver:
		q.DriverEmail = id.Email
	default:
		q.CreatedBy = id.Email
	}
	list, err := s.store.List(r.Context(), q)
	if err != nil {
		s.logger.Error("booking list failed", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.Booking{}
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBooking(w, r)
	if !ok {
		return
	}
	// Overlay the latest cached location: the consumer pipeline may be
	// ahead of the booking row.
	if s.last != nil {
		if upd, ok, err := s.last.Last(r.Context(), b.ID); err == nil && ok {
			loc := upd.Location
			b.VehicleLocation = &loc
			b.ETA = upd.ETA
		}
	}
	writeJSON(w, http.StatusOK, b)
}

// handleUpdateBooking mutates a booking and fans the result out. Driver
// assignment replaces any previous assignment; an empty driver_email in
// the request clears the assignment fields.
func (s *Server) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBooking(w, r)
	if !ok {
		return
	}
	var req struct {
		Status             *string       `json:"status"`
		DriverEmail        *string       `json:"driver_email"`
		DriverName         string        `json:"driver_name"`
		DriverPhone        string        `json:"driver_phone"`
		VehicleInfo        string        `json:"vehicle_info"`
		PickupCoordinates  *models.Coord `json:"pickup_coordinates"`
		DropoffCoordinates *models.Coord `json:"dropoff_coordinates"`
		FinalCost          *float64      `json:"final_cost"`
		PaymentStatus      *string       `json:"payment_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.DriverEmail != nil {
		if *req.DriverEmail != "" {
			b.DriverEmail = *req.DriverEmail
			b.DriverName = req.DriverName
			b.DriverPhone = req.DriverPhone
			b.VehicleInfo = req.VehicleInfo
			if req.Status == nil && b.Status == models.StatusPending {
				b.Status = models.StatusAssigned
			}
		} else {
			b.DriverEmail, b.DriverName, b.DriverPhone, b.VehicleInfo = "", "", "", ""
		}
	}
	if req.Status != nil {
		b.Status = *req.Status
	}
	if req.PickupCoordinates != nil {
		b.PickupCoordinates = req.PickupCoordinates
	}
	if req.DropoffCoordinates != nil {
		b.DropoffCoordinates = req.DropoffCoordinates
	}
	if req.FinalCost != nil {
		b.FinalCost = *req.FinalCost
	}
	if req.PaymentStatus != nil {
		b.PaymentStatus = *req.PaymentStatus
	}

	if err := s.store.Update(r.Context(), b); err != nil {
		s.logger.Error("booking update failed", "booking_id", b.ID, "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	s.bcast.EmitBooking(realtime.EventBookingUpdated, b)
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := s.store.Delete(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error("booking delete failed", "booking_id", id, "error", err)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	s.bcast.EmitBooking(realtime.EventBookingDeleted, b)
	writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

// handleDriverLocation is the HTTP alternative to the websocket inbound
// frame; both feed the same estimator.
func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id.Role != auth.RoleDriver {
		http.Error(w, "driver role required", http.StatusForbidden)
		return
	}
	var sample models.LocationSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sample.DriverEmail = id.Email
	if err := s.estimator.Ingest(r.Context(), sample); err != nil {
		switch {
		case errors.Is(err, eta.ErrMalformedSample):
			http.Error(w, "malformed sample", http.StatusBadRequest)
		case errors.Is(err, eta.ErrStaleBooking):
			http.Error(w, "booking is terminal", http.StatusConflict)
		case errors.Is(err, storage.ErrNotFound):
			http.Error(w, "booking not found", http.StatusNotFound)
		default:
			s.logger.Error("location ingest failed", "error", err)
			http.Error(w, "ingest failed", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWS performs the handshake. The credential comes from the
// Authorization header or a token query parameter. An invalid credential
// still gets a transport-level connection but joins no rooms.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	credential := r.Header.Get("Authorization")
	if credential == "" {
		credential = r.URL.Query().Get("token")
	}
	identity, authErr := s.verifier.Verify(credential)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	sess := realtime.NewSession(conn, identity, s.sendBuffer)
	s.registry.Register(sess)
	observability.ConnectionsOpen.Inc()

	if authErr != nil {
		s.logger.Warn("unauthenticated websocket, no rooms joined", "session_id", sess.ID)
	} else {
		for _, room := range realtime.AutoJoinRooms(identity) {
			s.registry.Join(sess.ID, room)
		}
		s.logger.Info("websocket connected",
			"session_id", sess.ID, "email", identity.Email, "role", identity.Role,
			"rooms", s.registry.Rooms(sess.ID))
	}

	go func() {
		// The request context dies when this handler returns; the
		// session outlives it.
		ctx := context.Background()
		sess.ReadLoop(func(env realtime.Envelope) { s.handleInbound(ctx, sess, env) })
		s.registry.Deregister(sess.ID)
		observability.ConnectionsOpen.Dec()
		s.logger.Info("websocket disconnected", "session_id", sess.ID)
	}()
}

func (s *Server) handleInbound(ctx context.Context, sess *realtime.Session, env realtime.Envelope) {
	if env.Event != realtime.EventDriverLocation {
		return
	}
	if sess.Identity.Role != auth.RoleDriver {
		s.logger.Warn("location frame from non-driver dropped", "session_id", sess.ID)
		return
	}
	var sample models.LocationSample
	if err := json.Unmarshal(env.Data, &sample); err != nil {
		s.logger.Warn("malformed location frame dropped", "session_id", sess.ID, "error", err)
		return
	}
	sample.DriverEmail = sess.Identity.Email
	if err := s.estimator.Ingest(ctx, sample); err != nil {
		// Ingest failures never kill the connection.
		s.logger.Warn("location sample rejected", "session_id", sess.ID, "error", err)
	}
}

func (s *Server) loadBooking(w http.ResponseWriter, r *http.Request) (*models.Booking, bool) {
	id := mux.Vars(r)["id"]
	b, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
		} else {
			s.logger.Error("booking load failed", "booking_id", id, "error", err)
			http.Error(w, "load failed", http.StatusInternalServerError)
		}
		return nil, false
	}
	return b, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
