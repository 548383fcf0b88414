package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatusClient struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]RoomStatus
	errs     map[uuid.UUID]error
}

func newFakeStatusClient() *fakeStatusClient {
	return &fakeStatusClient{
		statuses: make(map[uuid.UUID]RoomStatus),
		errs:     make(map[uuid.UUID]error),
	}
}

func (f *fakeStatusClient) setActive(id uuid.UUID, participants int, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.errs, id)
	f.statuses[id] = RoomStatus{
		AppointmentID:    id,
		IsActive:         participants > 0,
		ParticipantCount: participants,
		RoomName:         "room_" + id.String(),
		Timestamp:        ts,
	}
}

func (f *fakeStatusClient) setErr(id uuid.UUID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

func (f *fakeStatusClient) CheckRoomStatus(ctx context.Context, id uuid.UUID, asDoctor bool) (RoomStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[id]; ok {
		return RoomStatus{}, err
	}
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return RoomStatus{}, ErrRoomNotFound
}

type staticActive struct {
	id uuid.UUID
	ok bool
}

func (s staticActive) ActiveAppointment() (uuid.UUID, bool) { return s.id, s.ok }

type recordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (r *recordingNotifier) IncomingCall(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func confirmedAppointment(name string) Appointment {
	return Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		DoctorID:    uuid.New(),
		PatientName: name,
		DoctorName:  "Dr. " + name,
		Status:      "confirmed",
	}
}

func newTestArbiter(client *fakeStatusClient, active ActiveCallSource, notifier Notifier) *Arbiter {
	poller := NewPoller(client, time.Second, false)
	return NewArbiter(poller, RolePatient, active, notifier)
}

func TestArbiterNotifiesOnActiveRoom(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))

	arb.Tick(context.Background())

	current, ok := arb.Current()
	require.True(t, ok)
	assert.Equal(t, appt.ID, current.AppointmentID)
	assert.Equal(t, "Dr. Alice", current.CallerName)
	assert.Equal(t, RoleDoctor, current.CallerRole)
	assert.Equal(t, 1, notifier.count())
}

func TestArbiterShowsOneNotificationAtATime(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	first := confirmedAppointment("Alice")
	second := confirmedAppointment("Bob")
	arb.SetAppointments([]Appointment{first, second})

	client.setActive(first.ID, 1, time.Unix(1000, 0))
	client.setActive(second.ID, 2, time.Unix(1000, 0))

	arb.Tick(context.Background())

	current, ok := arb.Current()
	require.True(t, ok)
	assert.Equal(t, first.ID, current.AppointmentID, "first active appointment in order wins")
	assert.Equal(t, 1, notifier.count())
}

func TestArbiterSoundFiresOncePerRoomInstant(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))

	for i := 0; i < 5; i++ {
		arb.Tick(context.Background())
	}

	assert.Equal(t, 1, notifier.count(), "same room instant must not replay the alert")
}

func TestArbiterSkipsOwnActiveCall(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}

	appt := confirmedAppointment("Alice")
	arb := newTestArbiter(client, staticActive{id: appt.ID, ok: true}, notifier)
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 2, time.Unix(1000, 0))

	arb.Tick(context.Background())

	_, ok := arb.Current()
	assert.False(t, ok, "own call must never surface as incoming")
	assert.Equal(t, 0, notifier.count())
}

func TestArbiterIgnoresUnconfirmedAppointments(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	appt.Status = "pending"
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))

	arb.Tick(context.Background())

	_, ok := arb.Current()
	assert.False(t, ok)
}

func TestArbiterTreatsMissingRoomAsInactive(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})

	arb.Tick(context.Background())

	_, ok := arb.Current()
	assert.False(t, ok)
	assert.Equal(t, 0, notifier.count())
}

func TestArbiterPollErrorDoesNotAbortScan(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	broken := confirmedAppointment("Alice")
	healthy := confirmedAppointment("Bob")
	arb.SetAppointments([]Appointment{broken, healthy})

	client.setErr(broken.ID, context.DeadlineExceeded)
	client.setActive(healthy.ID, 1, time.Unix(1000, 0))

	arb.Tick(context.Background())

	current, ok := arb.Current()
	require.True(t, ok)
	assert.Equal(t, healthy.ID, current.AppointmentID)
}

func TestArbiterClearsWhenRoomEmpties(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})

	client.setActive(appt.ID, 1, time.Unix(1000, 0))
	arb.Tick(context.Background())
	_, ok := arb.Current()
	require.True(t, ok)

	client.setActive(appt.ID, 0, time.Unix(1000, 0))
	arb.Tick(context.Background())

	_, ok = arb.Current()
	assert.False(t, ok, "notification must clear when the caller hangs up")

	// A later call on the same appointment is a new instant and notifies again.
	client.setActive(appt.ID, 1, time.Unix(2000, 0))
	arb.Tick(context.Background())

	_, ok = arb.Current()
	assert.True(t, ok)
	assert.Equal(t, 2, notifier.count())
}

func TestArbiterClearsWhenAppointmentStopsQualifying(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))

	arb.Tick(context.Background())
	_, ok := arb.Current()
	require.True(t, ok)

	// Cancelled mid-ring: no confirmed appointment remains.
	appt.Status = "cancelled"
	arb.SetAppointments([]Appointment{appt})
	arb.Tick(context.Background())

	_, ok = arb.Current()
	assert.False(t, ok, "notification must clear once no confirmed appointment qualifies")

	arb.SetAppointments(nil)
	arb.Tick(context.Background())
	_, ok = arb.Current()
	assert.False(t, ok)
}

func TestArbiterDeclineSuppressesSameInstant(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))

	arb.Tick(context.Background())
	arb.Decline()

	arb.Tick(context.Background())
	_, ok := arb.Current()
	assert.False(t, ok, "declined room instant must not re-surface")
	assert.Equal(t, 1, notifier.count())

	// A fresh instant after the decline notifies normally.
	client.setActive(appt.ID, 1, time.Unix(2000, 0))
	arb.Tick(context.Background())

	current, ok := arb.Current()
	require.True(t, ok)
	assert.Equal(t, appt.ID, current.AppointmentID)
	assert.Equal(t, 2, notifier.count())
}

func TestArbiterAcceptHandsOverAndClears(t *testing.T) {
	client := newFakeStatusClient()
	notifier := &recordingNotifier{}
	arb := newTestArbiter(client, staticActive{}, notifier)

	appt := confirmedAppointment("Alice")
	arb.SetAppointments([]Appointment{appt})
	client.setActive(appt.ID, 1, time.Unix(1000, 0))
	arb.Tick(context.Background())

	accepted, ok := arb.Accept()
	require.True(t, ok)
	assert.Equal(t, appt.ID, accepted.AppointmentID)

	_, ok = arb.Current()
	assert.False(t, ok)

	_, ok = arb.Accept()
	assert.False(t, ok, "second accept has nothing to take")
}
