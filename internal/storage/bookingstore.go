package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/medride/internal/models"
)

var ErrNotFound = errors.New("booking not found")

// ListQuery narrows a booking listing. Empty fields mean "no filter";
// the HTTP layer builds the filter from the caller's role.
type ListQuery struct {
	CreatedBy   string
	DriverEmail string
	ActiveOnly  bool
}

// BookingStore defines persistence operations for bookings. The realtime
// core reads bookings to compute room targets and writes back only the
// two live fields via UpdateLive; everything else is the write path's.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id string) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking) error
	Delete(ctx context.Context, id string) (*models.Booking, error)
	List(ctx context.Context, q ListQuery) ([]*models.Booking, error)
	UpdateLive(ctx context.Context, id string, loc models.Coord, etaMinutes *int) error
}

type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]*models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bookings: make(map[string]*models.Booking)}
}

func (m *MemoryStore) Create(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	b.CreatedAt = now
	b.UpdatedAt = now
	m.bookings[b.ID] = clone(b)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (m *MemoryStore) Update(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	b.UpdatedAt = time.Now()
	m.bookings[b.ID] = clone(b)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.bookings, id)
	return b, nil
}

func (m *MemoryStore) List(ctx context.Context, q ListQuery) ([]*models.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		if q.CreatedBy != "" && b.CreatedBy != q.CreatedBy {
			continue
		}
		if q.DriverEmail != "" && b.DriverEmail != q.DriverEmail {
			continue
		}
		if q.ActiveOnly && b.Terminal() {
			continue
		}
		out = append(out, clone(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateLive(ctx context.Context, id string, loc models.Coord, etaMinutes *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	b.VehicleLocation = &models.Coord{Lat: loc.Lat, Lng: loc.Lng}
	b.ETA = etaMinutes
	b.UpdatedAt = time.Now()
	return nil
}

func clone(b *models.Booking) *models.Booking {
	c := *b
	if b.PickupCoordinates != nil {
		v := *b.PickupCoordinates
		c.PickupCoordinates = &v
	}
	if b.DropoffCoordinates != nil {
		v := *b.DropoffCoordinates
		c.DropoffCoordinates = &v
	}
	if b.VehicleLocation != nil {
		v := *b.VehicleLocation
		c.VehicleLocation = &v
	}
	if b.ETA != nil {
		v := *b.ETA
		c.ETA = &v
	}
	return &c
}
