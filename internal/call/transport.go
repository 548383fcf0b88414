package call

import "context"

// Credentials carry everything a transport needs to join a room. The URL is
// already normalized to a websocket scheme by whoever fetched them.
type Credentials struct {
	Token               string
	URL                 string
	RoomName            string
	ParticipantName     string
	ParticipantIdentity string
}

type Participant struct {
	Identity string
	Name     string
}

type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

type DeviceAvailability struct {
	Camera     bool
	Microphone bool
}

// Events are delivered by a Transport to its owning controller. Any handler
// may be nil. Connect success is reported by Connect returning, not by an
// event, so only asynchronous occurrences appear here.
type Events struct {
	OnDisconnected      func(reason DisconnectReason)
	OnParticipantJoined func(p Participant)
	OnParticipantLeft   func(p Participant)
	OnTrackSubscribed   func(p Participant, kind TrackKind)
}

// Transport is the contract the controller needs from a real-time media
// session. Implementations wrap a hosted media SDK; the controller owns the
// handle exclusively and never shares it.
type Transport interface {
	// Connect joins the room and blocks until the session is established
	// or fails. It is called at most once per transport instance.
	Connect(ctx context.Context, creds Credentials) error
	Disconnect(ctx context.Context) error

	SetCameraEnabled(ctx context.Context, enabled bool) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error

	// Devices reports which local capture devices are present, so the
	// controller can avoid enabling a modality that cannot work.
	Devices(ctx context.Context) (DeviceAvailability, error)
}

// TransportFactory builds a fresh transport bound to the given event
// handlers. The controller creates one per Idle -> Connecting transition.
type TransportFactory func(events Events) Transport
