package media

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/pion/webrtc/v4"

	"github.com/mednexus/telehealth-calls/internal/call"
)

// LiveKitTransport is a call.Transport backed by the LiveKit Go SDK. Camera
// and microphone are file-backed sample tracks, which is what a headless
// participant has instead of capture hardware.
type LiveKitTransport struct {
	events         call.Events
	cameraFile     string
	microphoneFile string

	mu        sync.Mutex
	room      *lksdk.Room
	cameraPub *lksdk.LocalTrackPublication
	micPub    *lksdk.LocalTrackPublication
}

// NewTransportFactory returns a call.TransportFactory producing transports
// that publish the given media files. Either path may be empty, which reads
// as the device being absent.
func NewTransportFactory(cameraFile, microphoneFile string) call.TransportFactory {
	return func(events call.Events) call.Transport {
		return &LiveKitTransport{
			events:         events,
			cameraFile:     cameraFile,
			microphoneFile: microphoneFile,
		}
	}
}

func (t *LiveKitTransport) Connect(ctx context.Context, creds call.Credentials) error {
	cb := &lksdk.RoomCallback{
		OnDisconnectedWithReason: func(reason lksdk.DisconnectionReason) {
			if t.events.OnDisconnected != nil {
				t.events.OnDisconnected(mapDisconnectReason(reason))
			}
		},
		OnParticipantConnected: func(rp *lksdk.RemoteParticipant) {
			if t.events.OnParticipantJoined != nil {
				t.events.OnParticipantJoined(remoteParticipant(rp))
			}
		},
		OnParticipantDisconnected: func(rp *lksdk.RemoteParticipant) {
			if t.events.OnParticipantLeft != nil {
				t.events.OnParticipantLeft(remoteParticipant(rp))
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed: func(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
				if t.events.OnTrackSubscribed != nil {
					t.events.OnTrackSubscribed(remoteParticipant(rp), trackKind(track))
				}
			},
		},
	}

	type result struct {
		room *lksdk.Room
		err  error
	}
	done := make(chan result, 1)

	// The SDK connect call has no context parameter; run it aside so the
	// caller's deadline still applies.
	go func() {
		room, err := lksdk.ConnectToRoomWithToken(creds.URL, creds.Token, cb)
		done <- result{room: room, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil && r.room != nil {
				r.room.Disconnect()
			}
		}()
		return fmt.Errorf("connect to room %s: %w", creds.RoomName, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("connect to room %s: %w", creds.RoomName, r.err)
		}
		t.mu.Lock()
		t.room = r.room
		t.mu.Unlock()
		return nil
	}
}

func (t *LiveKitTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	room := t.room
	t.room = nil
	t.cameraPub = nil
	t.micPub = nil
	t.mu.Unlock()

	if room == nil {
		return call.ErrNotConnected
	}
	room.Disconnect()
	return nil
}

func (t *LiveKitTransport) SetCameraEnabled(ctx context.Context, enabled bool) error {
	return t.setTrack(enabled, t.cameraFile, "camera", livekit.TrackSource_CAMERA, func() **lksdk.LocalTrackPublication {
		return &t.cameraPub
	})
}

func (t *LiveKitTransport) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	return t.setTrack(enabled, t.microphoneFile, "microphone", livekit.TrackSource_MICROPHONE, func() **lksdk.LocalTrackPublication {
		return &t.micPub
	})
}

func (t *LiveKitTransport) setTrack(enabled bool, file, name string, source livekit.TrackSource, slot func() **lksdk.LocalTrackPublication) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.room == nil {
		return call.ErrNotConnected
	}
	pub := slot()

	if !enabled {
		if *pub == nil {
			return nil
		}
		if err := t.room.LocalParticipant.UnpublishTrack((*pub).SID()); err != nil {
			return fmt.Errorf("unpublish %s: %w", name, err)
		}
		*pub = nil
		return nil
	}

	if *pub != nil {
		return nil
	}
	if file == "" {
		return fmt.Errorf("no %s source configured", name)
	}

	track, err := lksdk.NewLocalFileTrack(file)
	if err != nil {
		return fmt.Errorf("open %s source %s: %w", name, file, err)
	}
	published, err := t.room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   name,
		Source: source,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}
	*pub = published
	return nil
}

// Devices reports a device as present when its backing file exists.
func (t *LiveKitTransport) Devices(ctx context.Context) (call.DeviceAvailability, error) {
	return call.DeviceAvailability{
		Camera:     fileExists(t.cameraFile),
		Microphone: fileExists(t.microphoneFile),
	}, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func mapDisconnectReason(reason lksdk.DisconnectionReason) call.DisconnectReason {
	if reason == lksdk.LeaveRequested {
		return call.DisconnectLocalLeave
	}
	return call.DisconnectRemoteOrNetwork
}

func remoteParticipant(rp *lksdk.RemoteParticipant) call.Participant {
	return call.Participant{
		Identity: string(rp.Identity()),
		Name:     rp.Name(),
	}
}

func trackKind(track *webrtc.TrackRemote) call.TrackKind {
	if track.Kind() == webrtc.RTPCodecTypeVideo {
		return call.TrackKindVideo
	}
	return call.TrackKindAudio
}
