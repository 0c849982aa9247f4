package client

import (
	"sort"
	"sync"

	"github.com/example/medride/internal/models"
)

// State is the reconciled local view of bookings: a role-scoped snapshot
// fetched once per connection, with delta events merged on top. All merge
// operations are idempotent and keyed by booking id.
type State struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
	lastSeq  map[string]uint64
}

func NewState() *State {
	return &State{
		bookings: make(map[string]*models.Booking),
		lastSeq:  make(map[string]uint64),
	}
}

// Replace resets the state to a fresh snapshot. Sequence watermarks are
// kept: they are monotonic on the server across reconnects.
func (s *State) Replace(list []*models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = make(map[string]*models.Booking, len(list))
	for _, b := range list {
		s.bookings[b.ID] = b
	}
}

// ApplyCreated upserts by id.
func (s *State) ApplyCreated(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// ApplyUpdated replaces the matching entry, inserting when the event
// raced ahead of the snapshot fetch.
func (s *State) ApplyUpdated(b *models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
}

// ApplyDeleted removes by id; no-op when absent.
func (s *State) ApplyDeleted(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bookings, id)
	delete(s.lastSeq, id)
}

// ApplyLocation merges only the live fields into a known booking. A pure
// location event never creates a booking, and an update with a sequence
// number at or below the last applied one is stale and discarded.
func (s *State) ApplyLocation(upd models.LocationUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[upd.BookingID]
	if !ok {
		return false
	}
	if upd.Seq != 0 && upd.Seq <= s.lastSeq[upd.BookingID] {
		return false
	}
	loc := upd.Location
	b.VehicleLocation = &loc
	b.ETA = upd.ETA
	if upd.Seq != 0 {
		s.lastSeq[upd.BookingID] = upd.Seq
	}
	return true
}

// Get returns a copy of the booking with the given id.
func (s *State) Get(id string) (*models.Booking, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, false
	}
	c := *b
	return &c, true
}

// Bookings returns the current set ordered newest first, matching the
// server's listing order.
func (s *State) Bookings() []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Booking, 0, len(s.bookings))
	for _, b := range s.bookings {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookings)
}
