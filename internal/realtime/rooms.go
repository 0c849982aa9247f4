package realtime

import (
	"github.com/example/medride/internal/auth"
	"github.com/example/medride/internal/models"
)

// RoomAdmins receives every booking and location event.
const RoomAdmins = "admins"

func UserRoom(email string) string   { return "user:" + email }
func DriverRoom(email string) string { return "driver:" + email }

// RoomsFor maps a booking to its multicast destinations. It is recomputed
// on every emit: driver_email changes between events for the same booking
// (reassignment, unassignment), so nothing here may be cached.
func RoomsFor(b *models.Booking) []string {
	rooms := make([]string, 0, 3)
	if b.CreatedBy != "" && b.CreatedBy != models.GuestCreator {
		rooms = append(rooms, UserRoom(b.CreatedBy))
	}
	if b.DriverEmail != "" {
		rooms = append(rooms, DriverRoom(b.DriverEmail))
	}
	rooms = append(rooms, RoomAdmins)
	return rooms
}

// AutoJoinRooms lists the rooms a freshly authenticated connection is
// entitled to. Every identity joins its own user room; drivers and admins
// additionally join their role room.
func AutoJoinRooms(id auth.Identity) []string {
	rooms := []string{UserRoom(id.Email)}
	switch id.Role {
	case auth.RoleDriver:
		rooms = append(rooms, DriverRoom(id.Email))
	case auth.RoleAdmin:
		rooms = append(rooms, RoomAdmins)
	}
	return rooms
}
