package media

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRoomNameIsDeterministic(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	assert.Equal(t,
		"appointment_6ba7b810-9dad-11d1-80b4-00c04fd430c8_consultation",
		RoomName(id, "consultation"))
	assert.Equal(t, RoomName(id, "consultation"), RoomName(id, "consultation"))
}

func TestNormalizeWSURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ws://livekit.example.com", "ws://livekit.example.com"},
		{"wss://livekit.example.com", "wss://livekit.example.com"},
		{"http://livekit.example.com", "ws://livekit.example.com"},
		{"https://livekit.example.com", "wss://livekit.example.com"},
		{"localhost:7880", "ws://localhost:7880"},
		{"127.0.0.1:7880", "ws://127.0.0.1:7880"},
		{"livekit.example.com", "wss://livekit.example.com"},
		{"livekit.example.com:443", "wss://livekit.example.com:443"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeWSURL(tc.in), "input %q", tc.in)
	}
}
