package call

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ActiveCallSource tells the arbiter which appointment, if any, the user is
// already on a call for, so it can suppress self-notification. The arbiter
// never sees the transport handle itself.
type ActiveCallSource interface {
	ActiveAppointment() (uuid.UUID, bool)
}

// Notifier receives the one side effect of a genuinely new incoming call
// (sound, OS alert). The visible dialog itself is read via Current.
type Notifier interface {
	IncomingCall(n Notification)
}

// Arbiter decides, per polling tick, whether a single incoming-call
// notification should be shown, updated, or cleared across all of the
// user's confirmed appointments.
type Arbiter struct {
	poller   *Poller
	role     Role
	active   ActiveCallSource
	notifier Notifier

	mu           sync.Mutex
	appointments []Appointment
	current      *Notification
	lastNotifyID string // suppression token: last room instant we alerted for
}

func NewArbiter(poller *Poller, role Role, active ActiveCallSource, notifier Notifier) *Arbiter {
	return &Arbiter{
		poller:   poller,
		role:     role,
		active:   active,
		notifier: notifier,
	}
}

// SetAppointments replaces the appointment set scanned on each tick. Order
// is preserved: the first active room in input order wins.
func (a *Arbiter) SetAppointments(appointments []Appointment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.appointments = append([]Appointment(nil), appointments...)
}

// Current returns the notification on display, if any.
func (a *Arbiter) Current() (Notification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Notification{}, false
	}
	return *a.current, true
}

// Accept clears the pending notification and hands it to the caller, who is
// expected to move the controller into the call.
func (a *Arbiter) Accept() (Notification, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return Notification{}, false
	}
	n := *a.current
	a.current = nil
	return n, true
}

// Decline is a pure local clear: it does not touch the backend or the other
// party's session. The notify id is retained so the same room instant cannot
// re-surface the dialog or replay the sound.
func (a *Arbiter) Decline() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
}

// Tick scans the confirmed appointments sequentially and reconciles the
// notification. Poll failures never abort the scan of the remaining
// appointments.
func (a *Arbiter) Tick(ctx context.Context) {
	a.mu.Lock()
	var confirmed []Appointment
	for _, appt := range a.appointments {
		if appt.Confirmed() {
			confirmed = append(confirmed, appt)
		}
	}
	a.mu.Unlock()

	found := false

	for _, appt := range confirmed {
		if activeID, ok := a.active.ActiveAppointment(); ok && activeID == appt.ID {
			// Already on this call; never notify about our own room.
			a.clearFor(appt.ID)
			continue
		}

		status, err := a.poller.Poll(ctx, appt.ID)
		if err != nil {
			if errors.Is(err, ErrRoomNotFound) {
				// Room does not exist yet; reads as inactive.
				a.clearFor(appt.ID)
				continue
			}
			log.Printf("room status check failed for appointment %s: %v", appt.ID, err)
			continue
		}

		if status.IsActive && status.ParticipantCount > 0 {
			a.promote(appt, status)
			found = true
			break // at most one visible notification at a time
		}

		a.clearFor(appt.ID)
	}

	if !found {
		a.mu.Lock()
		if a.current != nil {
			// The room emptied, the caller hung up before pickup, or the
			// appointment itself stopped qualifying.
			a.current = nil
			a.lastNotifyID = ""
		}
		a.mu.Unlock()
	}
}

// promote makes appt the notification candidate. An unchanged candidate is
// left alone so side effects fire once per room instant.
func (a *Arbiter) promote(appt Appointment, status RoomStatus) {
	a.mu.Lock()

	if a.current != nil && a.current.AppointmentID == appt.ID {
		a.mu.Unlock()
		return
	}

	id := notifyID(appt.ID, status.Timestamp)

	if a.current == nil && a.lastNotifyID == id {
		// Explicitly declined this room instant; stay quiet.
		a.mu.Unlock()
		return
	}

	n := Notification{
		AppointmentID: appt.ID,
		CallerName:    appt.CallerName(a.role),
		CallerRole:    a.role.Other(),
		RoomName:      status.RoomName,
		CreatedAt:     time.Now(),
		NotifyID:      id,
	}

	fresh := a.lastNotifyID != id
	a.current = &n
	a.lastNotifyID = id
	a.mu.Unlock()

	if fresh && a.notifier != nil {
		a.notifier.IncomingCall(n)
	}
}

func (a *Arbiter) clearFor(appointmentID uuid.UUID) {
	a.mu.Lock()
	if a.current != nil && a.current.AppointmentID == appointmentID {
		a.current = nil
	}
	a.mu.Unlock()
}
