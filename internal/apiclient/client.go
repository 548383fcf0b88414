// Package apiclient is the Go consumer of the call service API, used by the
// headless call agent and the load simulator.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mednexus/telehealth-calls/internal/call"
	"github.com/mednexus/telehealth-calls/internal/media"
)

// Client talks to the call service with a fixed bearer token. It satisfies
// both call.RoomStatusClient and call.Backend. The role must match the
// token's: the doctor endpoints reject patient tokens and vice versa.
type Client struct {
	baseURL  string
	token    string
	asDoctor bool
	httpc    *http.Client
}

func New(baseURL, token string, asDoctor bool) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		asDoctor: asDoctor,
		httpc:    &http.Client{Timeout: 15 * time.Second},
	}
}

type appointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	PatientName string    `json:"patient_name"`
	DoctorName  string    `json:"doctor_name"`
	Status      string    `json:"status"`
}

type roomStatusResponse struct {
	IsActive         bool   `json:"is_active"`
	ParticipantCount int    `json:"participant_count"`
	RoomName         string `json:"room_name"`
	Timestamp        int64  `json:"timestamp"`
}

type joinRoomResponse struct {
	Token               string `json:"token"`
	URL                 string `json:"url"`
	RoomName            string `json:"room_name"`
	ParticipantIdentity string `json:"participant_identity"`
	ParticipantName     string `json:"participant_name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// apiError is any non-2xx response from the service. Callers that assign
// meaning to a particular status inspect it with errors.As.
type apiError struct {
	status  int
	method  string
	path    string
	message string
}

func (e *apiError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("%s %s: %s (status %d)", e.method, e.path, e.message, e.status)
	}
	return fmt.Sprintf("%s %s: status %d", e.method, e.path, e.status)
}

// ListAppointments fetches the caller's appointments, optionally filtered by
// status.
func (c *Client) ListAppointments(ctx context.Context, status string) ([]call.Appointment, error) {
	path := "/api/appointments"
	if status != "" {
		path += "?status=" + status
	}
	var resp []appointmentResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	appointments := make([]call.Appointment, 0, len(resp))
	for _, a := range resp {
		appointments = append(appointments, call.Appointment{
			ID:          a.ID,
			PatientID:   a.PatientID,
			DoctorID:    a.DoctorID,
			PatientName: a.PatientName,
			DoctorName:  a.DoctorName,
			Status:      a.Status,
		})
	}
	return appointments, nil
}

// CheckRoomStatus implements call.RoomStatusClient. A 404 means the room has
// not been created yet and maps to call.ErrRoomNotFound.
func (c *Client) CheckRoomStatus(ctx context.Context, appointmentID uuid.UUID, asDoctor bool) (call.RoomStatus, error) {
	path := "/api/livekit/room-status/" + appointmentID.String()
	if asDoctor {
		path = "/api/livekit/room-status-doctor/" + appointmentID.String()
	}
	var resp roomStatusResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		// Only here does a 404 carry meaning: the room has not been
		// created yet.
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.status == http.StatusNotFound {
			return call.RoomStatus{}, call.ErrRoomNotFound
		}
		return call.RoomStatus{}, err
	}
	return call.RoomStatus{
		AppointmentID:    appointmentID,
		IsActive:         resp.IsActive,
		ParticipantCount: resp.ParticipantCount,
		RoomName:         resp.RoomName,
		Timestamp:        time.Unix(resp.Timestamp, 0),
	}, nil
}

// InitiateCall implements call.Backend: it announces the call so the other
// party receives a push event and the room shows up in their polling.
func (c *Client) InitiateCall(ctx context.Context, appointmentID uuid.UUID) error {
	path := "/api/livekit/initiate-call"
	if c.asDoctor {
		path = "/api/livekit/initiate-call-doctor"
	}
	body := map[string]string{"appointment_id": appointmentID.String()}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// JoinAppointment implements call.Backend: it fetches room credentials and
// normalizes the media URL to a websocket scheme.
func (c *Client) JoinAppointment(ctx context.Context, appointmentID uuid.UUID, roomType string) (call.Credentials, error) {
	body := map[string]string{
		"appointment_id": appointmentID.String(),
		"room_type":      roomType,
	}
	path := "/api/livekit/join-appointment"
	if c.asDoctor {
		path = "/api/livekit/join-appointment-doctor"
	}
	var resp joinRoomResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return call.Credentials{}, err
	}
	return call.Credentials{
		Token:               resp.Token,
		URL:                 media.NormalizeWSURL(resp.URL),
		RoomName:            resp.RoomName,
		ParticipantName:     resp.ParticipantName,
		ParticipantIdentity: resp.ParticipantIdentity,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &apiError{status: resp.StatusCode, method: method, path: path}
		var body errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil {
			apiErr.message = body.Error
		}
		return apiErr
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
