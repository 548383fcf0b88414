package call

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Appointment is the read-only view of an appointment this core needs:
// enough to decide poll eligibility and to name the counterparty.
type Appointment struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	DoctorID    uuid.UUID
	PatientName string
	DoctorName  string
	Status      string
}

func (a Appointment) Confirmed() bool {
	return strings.EqualFold(a.Status, "confirmed")
}

// CallerName is the display name of the party opposite the given role.
func (a Appointment) CallerName(role Role) string {
	if role == RolePatient {
		if a.DoctorName != "" {
			return a.DoctorName
		}
		return "Doctor"
	}
	if a.PatientName != "" {
		return a.PatientName
	}
	return "Patient"
}

// RoomStatus is the result of one room poll. It fully replaces any prior
// knowledge about that appointment's room; nothing is persisted.
type RoomStatus struct {
	AppointmentID    uuid.UUID
	IsActive         bool
	ParticipantCount int
	RoomName         string
	Timestamp        time.Time
}

// Notification is the single incoming-call prompt the arbiter may hold.
type Notification struct {
	AppointmentID uuid.UUID
	CallerName    string
	CallerRole    Role
	RoomName      string
	CreatedAt     time.Time

	// NotifyID identifies one room instant: the same room staying active
	// keeps the same id, so repeated polls never re-fire side effects.
	NotifyID string
}

func notifyID(appointmentID uuid.UUID, ts time.Time) string {
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s_%d", appointmentID, ts.Unix())
}
