package call

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Backend is the slice of the REST API the controller needs: announcing a
// call so the other party's poller can see it, and fetching transport
// credentials for an appointment's room.
type Backend interface {
	InitiateCall(ctx context.Context, appointmentID uuid.UUID) error
	JoinAppointment(ctx context.Context, appointmentID uuid.UUID, roomType string) (Credentials, error)
}

// Reporter receives user-meaningful failures. Hosts decide how to present
// them; the controller never talks to a UI directly.
type Reporter interface {
	// ConnectFailed is a blocking alert: the call surface closes shortly
	// after it is shown.
	ConnectFailed(appointmentID uuid.UUID, err error)
	// DeviceUnavailable is non-blocking; the call continues without the
	// named modality.
	DeviceUnavailable(appointmentID uuid.UUID, device string, err error)
}

type ControllerConfig struct {
	ConnectTimeout    time.Duration // bound on token fetch + transport connect
	DeviceEnableDelay time.Duration // settle time after connect before enabling devices
	ErrorCloseDelay   time.Duration // keep a connect error visible before completion fires
	RoomType          string
}

// session is one call attempt: the exclusively owned transport handle plus
// the per-attempt guards. A new session is created on every
// Idle -> Connecting transition.
type session struct {
	appointmentID   uuid.UUID
	transport       Transport
	completionFired bool
	closeTimer      *time.Timer

	// ctx outlives the connect call and bounds post-connect work (device
	// enablement); it is cancelled when the session leaves the controller.
	ctx    context.Context
	cancel context.CancelFunc
}

// Controller owns the active-call lifecycle: initiate, accept, leave. It
// guarantees at most one live transport per instance and fires the
// completion callback exactly once per call, however the call ends.
type Controller struct {
	backend      Backend
	newTransport TransportFactory
	reporter     Reporter
	cfg          ControllerConfig

	mu           sync.Mutex
	phase        Phase
	active       *session
	muted        bool
	cameraOff    bool
	participants []Participant
	onComplete   func()
	onChange     func(ViewState)
}

func NewController(backend Backend, factory TransportFactory, reporter Reporter, cfg ControllerConfig) *Controller {
	if cfg.RoomType == "" {
		cfg.RoomType = "consultation"
	}
	return &Controller{
		backend:      backend,
		newTransport: factory,
		reporter:     reporter,
		cfg:          cfg,
		phase:        PhaseIdle,
	}
}

// SetCompletionHandler replaces the callback invoked when the call surface
// should close. It can be swapped at any time without resubscribing.
func (c *Controller) SetCompletionHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// OnStateChange registers the view-state observer.
func (c *Controller) OnStateChange(fn func(ViewState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// ActiveAppointment implements ActiveCallSource for the arbiter.
func (c *Controller) ActiveAppointment() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return uuid.Nil, false
	}
	return c.active.appointmentID, true
}

// Initiate starts a call as the calling party: it announces the call to the
// backend so the other side's poller can detect it, then joins the room.
func (c *Controller) Initiate(ctx context.Context, appointmentID uuid.UUID) error {
	s, err := c.begin(appointmentID)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.backend.InitiateCall(connectCtx, appointmentID); err != nil {
		c.failConnect(s, err)
		return err
	}

	return c.join(connectCtx, s)
}

// Accept joins a call the other party already announced. The caller is
// expected to have cleared the pending notification (Arbiter.Accept).
func (c *Controller) Accept(ctx context.Context, appointmentID uuid.UUID) error {
	s, err := c.begin(appointmentID)
	if err != nil {
		return err
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	return c.join(connectCtx, s)
}

// begin performs the guarded Idle -> Connecting transition and creates the
// session that will own the transport.
func (c *Controller) begin(appointmentID uuid.UUID) (*session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseIdle {
		// UI race guard, not a real failure.
		log.Printf("ignoring call start for appointment %s: controller is %s", appointmentID, c.phase)
		return nil, ErrCallInProgress
	}

	s := &session{appointmentID: appointmentID}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.transport = c.newTransport(c.eventsFor(s))

	c.phase = PhaseConnecting
	c.active = s
	c.muted = false
	c.cameraOff = false
	c.participants = nil

	return s, nil
}

func (c *Controller) join(ctx context.Context, s *session) error {
	creds, err := c.backend.JoinAppointment(ctx, s.appointmentID, c.cfg.RoomType)
	if err != nil {
		c.failConnect(s, err)
		return err
	}

	// The surface may have been torn down while the token was in flight.
	c.mu.Lock()
	if c.active != s || c.phase != PhaseConnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := s.transport.Connect(ctx, creds); err != nil {
		c.failConnect(s, err)
		return err
	}

	c.mu.Lock()
	if c.active != s || c.phase != PhaseConnecting {
		// Torn down while connecting; this handle must not leak.
		c.mu.Unlock()
		if err := s.transport.Disconnect(context.Background()); err != nil {
			log.Printf("disconnect of orphaned session for appointment %s: %v", s.appointmentID, err)
		}
		return nil
	}
	c.phase = PhaseConnected
	c.mu.Unlock()
	c.notifyChange()

	// Post-connect work runs on the session's own context: the connect
	// timeout context dies when Initiate/Accept returns.
	go c.enableDevices(s)

	return nil
}

// enableDevices waits for the connection to settle, then enables camera and
// microphone independently. A failure on one modality never aborts the other
// or the call.
func (c *Controller) enableDevices(s *session) {
	ctx := s.ctx
	if !sleepCtx(ctx, c.cfg.DeviceEnableDelay) {
		return
	}
	if !c.owns(s, PhaseConnected) {
		return
	}

	devices, err := s.transport.Devices(ctx)
	if err != nil {
		// Probe failed; attempt both anyway, the per-device errors will
		// tell the user what is actually missing.
		log.Printf("device probe failed for appointment %s: %v", s.appointmentID, err)
		devices = DeviceAvailability{Camera: true, Microphone: true}
	}

	if devices.Camera {
		if err := s.transport.SetCameraEnabled(ctx, true); err != nil {
			c.setCameraOff(true)
			c.reporter.DeviceUnavailable(s.appointmentID, "camera", err)
		}
	} else {
		log.Printf("no video input device for appointment %s", s.appointmentID)
		c.setCameraOff(true)
	}

	if devices.Microphone {
		if err := s.transport.SetMicrophoneEnabled(ctx, true); err != nil {
			c.setMuted(true)
			c.reporter.DeviceUnavailable(s.appointmentID, "microphone", err)
		}
	} else {
		log.Printf("no audio input device for appointment %s", s.appointmentID)
		c.setMuted(true)
	}

	c.notifyChange()
}

// Leave ends the call locally. The completion callback fires exactly once,
// whether or not the transport disconnect itself succeeds.
func (c *Controller) Leave(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseConnecting && c.phase != PhaseConnected {
		c.mu.Unlock()
		return
	}
	s := c.active
	c.phase = PhaseDisconnecting
	c.mu.Unlock()
	c.notifyChange()

	if err := s.transport.Disconnect(ctx); err != nil {
		log.Printf("transport disconnect for appointment %s: %v", s.appointmentID, err)
	}

	c.finish(s, true)
}

// ToggleMute flips the microphone. Failures are per-modality and non-fatal.
func (c *Controller) ToggleMute(ctx context.Context) error {
	s, enable, err := c.intent(func() *bool { return &c.muted })
	if err != nil {
		return err
	}
	if err := s.transport.SetMicrophoneEnabled(ctx, enable); err != nil {
		c.reporter.DeviceUnavailable(s.appointmentID, "microphone", err)
		return err
	}
	c.setMuted(!enable)
	c.notifyChange()
	return nil
}

// ToggleCamera flips the camera.
func (c *Controller) ToggleCamera(ctx context.Context) error {
	s, enable, err := c.intent(func() *bool { return &c.cameraOff })
	if err != nil {
		return err
	}
	if err := s.transport.SetCameraEnabled(ctx, enable); err != nil {
		c.reporter.DeviceUnavailable(s.appointmentID, "camera", err)
		return err
	}
	c.setCameraOff(!enable)
	c.notifyChange()
	return nil
}

// intent validates a connected call and reads the flag the toggle inverts.
func (c *Controller) intent(flag func() *bool) (*session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != PhaseConnected || c.active == nil {
		return nil, false, ErrNotConnected
	}
	return c.active, *flag(), nil
}

// Close tears the controller down when its owning surface goes away. Pending
// timers are stopped and any live transport is disconnected; the completion
// callback is not fired, there is nobody left to observe it.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	s := c.active
	c.phase = PhaseIdle
	c.active = nil
	c.participants = nil
	c.mu.Unlock()

	if s == nil {
		return
	}
	s.cancel()
	if s.closeTimer != nil {
		s.closeTimer.Stop()
	}
	c.mu.Lock()
	s.completionFired = true
	c.mu.Unlock()
	if err := s.transport.Disconnect(ctx); err != nil {
		log.Printf("transport disconnect on close for appointment %s: %v", s.appointmentID, err)
	}
}

// failConnect surfaces a connect error, returns to Idle, and schedules the
// completion callback so the error stays visible before the surface closes.
func (c *Controller) failConnect(s *session, err error) {
	log.Printf("call connect failed for appointment %s: %v", s.appointmentID, err)
	c.reporter.ConnectFailed(s.appointmentID, err)
	s.cancel()

	c.mu.Lock()
	if c.active == s {
		c.phase = PhaseIdle
		c.active = nil
	}
	c.mu.Unlock()
	c.notifyChange()

	s.closeTimer = time.AfterFunc(c.cfg.ErrorCloseDelay, func() {
		c.fireCompletion(s)
	})
}

// finish moves the controller back to Idle for this session and optionally
// fires the completion callback.
func (c *Controller) finish(s *session, complete bool) {
	s.cancel()
	c.mu.Lock()
	if c.active == s {
		c.phase = PhaseIdle
		c.active = nil
		c.participants = nil
	}
	c.mu.Unlock()
	c.notifyChange()

	if complete {
		c.fireCompletion(s)
	}
}

func (c *Controller) fireCompletion(s *session) {
	c.mu.Lock()
	if s.completionFired {
		c.mu.Unlock()
		return
	}
	s.completionFired = true
	fn := c.onComplete
	c.mu.Unlock()

	if fn != nil {
		fn()
	}
}

func (c *Controller) eventsFor(s *session) Events {
	return Events{
		OnDisconnected: func(reason DisconnectReason) {
			c.handleDisconnect(s, reason)
		},
		OnParticipantJoined: func(p Participant) {
			c.addParticipant(s, p)
		},
		OnParticipantLeft: func(p Participant) {
			c.removeParticipant(s, p)
		},
		OnTrackSubscribed: func(p Participant, kind TrackKind) {
			// Attach points are the view's concern; just refresh state.
			c.notifyChange()
		},
	}
}

// handleDisconnect reconciles a transport disconnect event. Local leaves
// already fired the completion callback from Leave; remote or network
// disconnects must fire it here so the host closes the call surface.
func (c *Controller) handleDisconnect(s *session, reason DisconnectReason) {
	c.mu.Lock()
	current := c.active == s
	c.mu.Unlock()

	if !current {
		// The session already finished (e.g. the disconnect event for a
		// leave we initiated). Nothing more may fire.
		return
	}

	log.Printf("transport disconnected for appointment %s: %s", s.appointmentID, reason)
	c.finish(s, reason == DisconnectRemoteOrNetwork)
}

func (c *Controller) addParticipant(s *session, p Participant) {
	c.mu.Lock()
	if c.active == s {
		exists := false
		for _, existing := range c.participants {
			if existing.Identity == p.Identity {
				exists = true
				break
			}
		}
		if !exists {
			c.participants = append(c.participants, p)
		}
	}
	c.mu.Unlock()
	c.notifyChange()
}

func (c *Controller) removeParticipant(s *session, p Participant) {
	c.mu.Lock()
	if c.active == s {
		kept := c.participants[:0]
		for _, existing := range c.participants {
			if existing.Identity != p.Identity {
				kept = append(kept, existing)
			}
		}
		c.participants = kept
	}
	c.mu.Unlock()
	c.notifyChange()
}

func (c *Controller) setMuted(v bool) {
	c.mu.Lock()
	c.muted = v
	c.mu.Unlock()
}

func (c *Controller) setCameraOff(v bool) {
	c.mu.Lock()
	c.cameraOff = v
	c.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Controller) owns(s *session, phase Phase) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active == s && c.phase == phase
}
