package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mednexus/telehealth-calls/internal/call"
)

func TestCheckRoomStatus(t *testing.T) {
	appointmentID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/livekit/room-status/"+appointmentID.String(), r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"is_active":         true,
			"participant_count": 2,
			"room_name":         "appointment_" + appointmentID.String() + "_consultation",
			"timestamp":         int64(1700000000),
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-token", false)

	status, err := c.CheckRoomStatus(context.Background(), appointmentID, false)
	require.NoError(t, err)
	assert.True(t, status.IsActive)
	assert.Equal(t, 2, status.ParticipantCount)
	assert.Equal(t, appointmentID, status.AppointmentID)
	assert.Equal(t, time.Unix(1700000000, 0), status.Timestamp)
}

func TestCheckRoomStatusDoctorPath(t *testing.T) {
	appointmentID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/livekit/room-status-doctor/"+appointmentID.String(), r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"is_active": false})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t", true).CheckRoomStatus(context.Background(), appointmentID, true)
	require.NoError(t, err)
}

func TestCheckRoomStatusMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"room_not_found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "t", false).CheckRoomStatus(context.Background(), uuid.New(), false)
	assert.ErrorIs(t, err, call.ErrRoomNotFound)
}

func TestNotFoundOutsideRoomStatusStaysPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "appointment_not_found"})
	}))
	defer srv.Close()

	c := New(srv.URL, "t", false)

	err := c.InitiateCall(context.Background(), uuid.New())
	require.Error(t, err)
	assert.NotErrorIs(t, err, call.ErrRoomNotFound, "a missing appointment is not a missing room")
	assert.Contains(t, err.Error(), "appointment_not_found")

	_, err = c.JoinAppointment(context.Background(), uuid.New(), "consultation")
	require.Error(t, err)
	assert.NotErrorIs(t, err, call.ErrRoomNotFound)
}

func TestJoinAppointmentNormalizesURL(t *testing.T) {
	appointmentID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/livekit/join-appointment", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, appointmentID.String(), req["appointment_id"])
		assert.Equal(t, "consultation", req["room_type"])

		json.NewEncoder(w).Encode(map[string]string{
			"token":                "jwt",
			"url":                  "https://livekit.example.com",
			"room_name":            "appointment_x_consultation",
			"participant_identity": "user-1",
			"participant_name":     "Alice",
		})
	}))
	defer srv.Close()

	creds, err := New(srv.URL, "t", false).JoinAppointment(context.Background(), appointmentID, "consultation")
	require.NoError(t, err)
	assert.Equal(t, "jwt", creds.Token)
	assert.Equal(t, "wss://livekit.example.com", creds.URL)
	assert.Equal(t, "Alice", creds.ParticipantName)
}

func TestDoctorClientUsesDoctorEndpoints(t *testing.T) {
	appointmentID := uuid.New()

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/livekit/initiate-call-doctor":
			w.WriteHeader(http.StatusOK)
		case "/api/livekit/join-appointment-doctor":
			json.NewEncoder(w).Encode(map[string]string{
				"token":     "jwt",
				"url":       "https://livekit.example.com",
				"room_name": "appointment_x_consultation",
			})
		default:
			http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "t", true)

	require.NoError(t, c.InitiateCall(context.Background(), appointmentID))
	_, err := c.JoinAppointment(context.Background(), appointmentID, "consultation")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/livekit/initiate-call-doctor",
		"/api/livekit/join-appointment-doctor",
	}, paths)
}

func TestListAppointments(t *testing.T) {
	a := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/appointments", r.URL.Path)
		assert.Equal(t, "confirmed", r.URL.Query().Get("status"))

		json.NewEncoder(w).Encode([]map[string]interface{}{
			{
				"id":           a.String(),
				"patient_id":   uuid.New().String(),
				"doctor_id":    uuid.New().String(),
				"patient_name": "Alice",
				"doctor_name":  "Dr. Bob",
				"status":       "confirmed",
			},
		})
	}))
	defer srv.Close()

	appointments, err := New(srv.URL, "t", false).ListAppointments(context.Background(), "confirmed")
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, a, appointments[0].ID)
	assert.True(t, appointments[0].Confirmed())
}

func TestErrorResponsesSurfaceCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "call_already_starting"})
	}))
	defer srv.Close()

	err := New(srv.URL, "t", false).InitiateCall(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "call_already_starting")
}
