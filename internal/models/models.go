package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Booking status lifecycle. Cancelled is reachable from any non-terminal state.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusAssigned  = "assigned"
	StatusEnRoute   = "en_route"
	StatusArrived   = "arrived"
	StatusInTransit = "in_transit"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// GuestCreator marks bookings made without an authenticated account.
// Guests have no persistent connection identity and no user room.
const GuestCreator = "guest"

type Booking struct {
	ID                 string  `json:"id"`
	CreatedBy          string  `json:"created_by"`
	PickupAddress      string  `json:"pickup_address"`
	DropoffAddress     string  `json:"dropoff_address"`
	PickupCoordinates  *Coord  `json:"pickup_coordinates,omitempty"`
	DropoffCoordinates *Coord  `json:"dropoff_coordinates,omitempty"`
	ScheduledDate      string  `json:"scheduled_date,omitempty"`
	ScheduledTime      string  `json:"scheduled_time,omitempty"`
	AssistanceType     string  `json:"assistance_type,omitempty"`
	PassengerCount     int     `json:"passenger_count,omitempty"`
	SpecialInstr       string  `json:"special_instructions,omitempty"`
	EstimatedCost      float64 `json:"estimated_cost,omitempty"`
	FinalCost          float64 `json:"final_cost,omitempty"`
	DriverEmail        string  `json:"driver_email,omitempty"`
	DriverName         string  `json:"driver_name,omitempty"`
	DriverPhone        string  `json:"driver_phone,omitempty"`
	VehicleInfo        string  `json:"vehicle_info,omitempty"`
	GuestName          string  `json:"guest_name,omitempty"`
	GuestPhone         string  `json:"guest_phone,omitempty"`
	PaymentStatus      string  `json:"payment_status,omitempty"`

	// Live fields, written only by the location ingest path.
	VehicleLocation *Coord `json:"vehicle_location,omitempty"`
	ETA             *int   `json:"eta,omitempty"` // minutes

	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the booking accepts no further mutations.
func (b *Booking) Terminal() bool { return TerminalStatus(b.Status) }

func TerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// LocationSample is a single driver position report. Not persisted as its
// own entity; only the most recent value per booking survives.
type LocationSample struct {
	BookingID   string `json:"bookingId"`
	Location    Coord  `json:"location"`
	UserEmail   string `json:"userEmail,omitempty"`
	DriverEmail string `json:"driverEmail"`
}

// LocationUpdate is the payload broadcast for driver:location events.
// Seq increases monotonically per booking so consumers can discard
// samples that raced on the network.
type LocationUpdate struct {
	BookingID string `json:"bookingId"`
	Location  Coord  `json:"location"`
	ETA       *int   `json:"eta"`
	Seq       uint64 `json:"seq"`
}
