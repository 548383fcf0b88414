package call

import "github.com/google/uuid"

// ViewState is the render model for a call surface: everything a host needs
// to draw the session without reaching into the controller. It is a value
// snapshot, safe to hold across frames.
type ViewState struct {
	Phase         Phase
	AppointmentID uuid.UUID
	Muted         bool
	CameraOff     bool
	Participants  []Participant
}

// Snapshot returns the current view state.
func (c *Controller) Snapshot() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() ViewState {
	st := ViewState{
		Phase:     c.phase,
		Muted:     c.muted,
		CameraOff: c.cameraOff,
	}
	if c.active != nil {
		st.AppointmentID = c.active.appointmentID
	}
	if len(c.participants) > 0 {
		st.Participants = append([]Participant(nil), c.participants...)
	}
	return st
}

// notifyChange pushes a fresh snapshot to the registered observer. The
// callback runs without the controller lock held, so observers may call back
// into the controller.
func (c *Controller) notifyChange() {
	c.mu.Lock()
	fn := c.onChange
	st := c.snapshotLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(st)
	}
}
