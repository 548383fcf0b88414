package api

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
)

type JoinRoomRequest struct {
	AppointmentID string `json:"appointment_id"`
	RoomType      string `json:"room_type,omitempty"`
}

type JoinRoomResponse struct {
	Token               string `json:"token"`
	URL                 string `json:"url"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name"`
}

type InitiateCallRequest struct {
	AppointmentID string `json:"appointment_id"`
	RoomType      string `json:"room_type,omitempty"`
}

type InitiateCallResponse struct {
	RoomName string `json:"room_name"`
	Notified bool   `json:"notified"`
}

type RoomStatusResponse struct {
	IsActive         bool   `json:"is_active"`
	ParticipantCount int    `json:"participant_count"`
	RoomName         string `json:"room_name"`
	Timestamp        int64  `json:"timestamp"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	Status      string    `json:"status"`
	ScheduledAt int64     `json:"scheduled_at"`
}

// CallEvent is the websocket push sent to a user when the other party starts
// a call. Pollers catch the same call eventually; the event just makes it
// instant for connected clients.
type CallEvent struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	CallerName    string    `json:"caller_name"`
	CallerRole    string    `json:"caller_role"`
	RoomName      string    `json:"room_name"`
	Timestamp     int64     `json:"timestamp"`
}

type TokenRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type TokenResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
	Name  string `json:"name"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
