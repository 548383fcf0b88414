package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, hub *Hub, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversCallEvents(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	userID := uuid.New()
	conn := dialHub(t, hub, userID)

	event := CallEvent{
		Type:          "incoming_call",
		AppointmentID: uuid.New(),
		CallerName:    "Dr. Bob",
		CallerRole:    "doctor",
		RoomName:      "appointment_x_consultation",
		Timestamp:     time.Now().Unix(),
	}

	require.Eventually(t, func() bool {
		return hub.Send(userID, event)
	}, time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var got CallEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "incoming_call", got.Type)
	assert.Equal(t, event.AppointmentID, got.AppointmentID)
	assert.Equal(t, "Dr. Bob", got.CallerName)
}

func TestHubSendWithoutConnection(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	assert.False(t, hub.Send(uuid.New(), CallEvent{Type: "incoming_call"}))
}

func TestHubReconnectReplacesConnection(t *testing.T) {
	hub := NewHub()
	defer hub.Close()

	userID := uuid.New()
	first := dialHub(t, hub, userID)
	second := dialHub(t, hub, userID)

	// Give the server side of the second dial a moment to register.
	time.Sleep(50 * time.Millisecond)

	event := CallEvent{Type: "incoming_call", AppointmentID: uuid.New()}
	require.Eventually(t, func() bool {
		return hub.Send(userID, event)
	}, time.Second, 10*time.Millisecond)

	second.SetReadDeadline(time.Now().Add(time.Second))
	var got CallEvent
	require.NoError(t, second.ReadJSON(&got))
	assert.Equal(t, event.AppointmentID, got.AppointmentID)

	// The replaced connection is closed by the hub.
	first.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)
}
