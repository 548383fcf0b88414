package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mednexus/telehealth-calls/internal/appointment"
	"github.com/mednexus/telehealth-calls/internal/auth"
	"github.com/mednexus/telehealth-calls/internal/media"
	redisclient "github.com/mednexus/telehealth-calls/internal/redis"
)

// statusCache is the slice of the Redis status cache the handlers use.
type statusCache interface {
	Get(ctx context.Context, roomName string) ([]byte, bool)
	Set(ctx context.Context, roomName string, payload []byte)
}

// CallHandler serves the call endpoints: join, initiate, and room status,
// each in a patient and a doctor variant.
type CallHandler struct {
	svc      *appointment.Service
	rooms    media.RoomDirectory
	tokens   *media.TokenMinter
	cache    statusCache
	locker   redisclient.Locker
	hub      *Hub
	mediaURL string
	roomType string
}

func NewCallHandler(svc *appointment.Service, rooms media.RoomDirectory, tokens *media.TokenMinter, cache statusCache, locker redisclient.Locker, hub *Hub, mediaURL, roomType string) *CallHandler {
	if roomType == "" {
		roomType = "consultation"
	}
	return &CallHandler{
		svc:      svc,
		rooms:    rooms,
		tokens:   tokens,
		cache:    cache,
		locker:   locker,
		hub:      hub,
		mediaURL: media.NormalizeWSURL(mediaURL),
		roomType: roomType,
	}
}

func (h *CallHandler) joinAppointment(asDoctor bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appointmentID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		detail, err := h.ownedConfirmed(r.Context(), appointmentID, asDoctor)
		if err != nil {
			handleCallError(w, err)
			return
		}

		identity := auth.UserID(r.Context()).String()
		name := detail.PatientName
		if asDoctor {
			name = detail.DoctorName
		}

		roomName := media.RoomName(appointmentID, h.roomType)
		token, err := h.tokens.Mint(roomName, identity, name)
		if err != nil {
			log.Printf("mint token for appointment %s: %v", appointmentID, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not issue room token")
			return
		}

		writeJSON(w, http.StatusOK, JoinRoomResponse{
			Token:               token,
			URL:                 h.mediaURL,
			RoomName:            roomName,
			ParticipantIdentity: identity,
			ParticipantName:     name,
		})
	}
}

func (h *CallHandler) initiateCall(asDoctor bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req InitiateCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appointmentID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		detail, err := h.ownedConfirmed(r.Context(), appointmentID, asDoctor)
		if err != nil {
			handleCallError(w, err)
			return
		}

		roomName := media.RoomName(appointmentID, h.roomType)
		notified := false

		err = h.locker.WithCallLock(r.Context(), appointmentID, func(ctx context.Context) error {
			target := detail.DoctorID
			callerName := detail.PatientName
			callerRole := auth.RolePatient
			if asDoctor {
				target = detail.PatientID
				callerName = detail.DoctorName
				callerRole = auth.RoleDoctor
			}

			notified = h.hub.Send(target, CallEvent{
				Type:          "incoming_call",
				AppointmentID: appointmentID,
				CallerName:    callerName,
				CallerRole:    callerRole,
				RoomName:      roomName,
				Timestamp:     time.Now().Unix(),
			})
			return nil
		})
		if err != nil {
			handleCallError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, InitiateCallResponse{
			RoomName: roomName,
			Notified: notified,
		})
	}
}

func (h *CallHandler) roomStatus(asDoctor bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentID must be a valid UUID")
			return
		}

		if _, err := h.owned(r.Context(), appointmentID, asDoctor); err != nil {
			handleCallError(w, err)
			return
		}

		roomName := media.RoomName(appointmentID, h.roomType)

		if payload, ok := h.cache.Get(r.Context(), roomName); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(payload)
			return
		}

		info, exists, err := h.rooms.LookupRoom(r.Context(), roomName)
		if err != nil {
			// Media server trouble reads as "no call right now" rather than
			// an error the poller would surface every 5 seconds.
			log.Printf("room lookup for %s: %v", roomName, err)
			writeJSON(w, http.StatusOK, RoomStatusResponse{
				IsActive: false,
				RoomName: roomName,
			})
			return
		}
		if !exists {
			writeError(w, http.StatusNotFound, "room_not_found", "no active room for this appointment")
			return
		}

		ts := info.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		resp := RoomStatusResponse{
			IsActive:         info.ParticipantCount > 0,
			ParticipantCount: info.ParticipantCount,
			RoomName:         roomName,
			Timestamp:        ts.Unix(),
		}

		if payload, err := json.Marshal(resp); err == nil {
			h.cache.Set(r.Context(), roomName, payload)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *CallHandler) listAppointments() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
			return
		}

		status := appointment.Status(r.URL.Query().Get("status"))

		var (
			details []appointment.Detail
			err     error
		)
		if claims.Role == auth.RoleDoctor {
			details, err = h.svc.ListForDoctor(r.Context(), claims.UserID, status, 0, 0)
		} else {
			details, err = h.svc.ListForPatient(r.Context(), claims.UserID, status, 0, 0)
		}
		if err != nil {
			log.Printf("list appointments for user %s: %v", claims.UserID, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not list appointments")
			return
		}

		resp := make([]AppointmentResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, AppointmentResponse{
				ID:          d.ID,
				PatientID:   d.PatientID,
				DoctorID:    d.DoctorID,
				PatientName: d.PatientName,
				DoctorName:  d.DoctorName,
				Status:      string(d.Status),
				ScheduledAt: d.ScheduledAt.Unix(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *CallHandler) notifications() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == uuid.Nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
			return
		}
		h.hub.Serve(w, r, userID)
	}
}

func (h *CallHandler) owned(ctx context.Context, appointmentID uuid.UUID, asDoctor bool) (*appointment.Detail, error) {
	userID := auth.UserID(ctx)
	if asDoctor {
		return h.svc.ForDoctor(ctx, appointmentID, userID)
	}
	return h.svc.ForPatient(ctx, appointmentID, userID)
}

func (h *CallHandler) ownedConfirmed(ctx context.Context, appointmentID uuid.UUID, asDoctor bool) (*appointment.Detail, error) {
	userID := auth.UserID(ctx)
	if asDoctor {
		return h.svc.ConfirmedForDoctor(ctx, appointmentID, userID)
	}
	return h.svc.ConfirmedForPatient(ctx, appointmentID, userID)
}

func handleCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotConfirmed):
		writeError(w, http.StatusConflict, "appointment_not_confirmed", err.Error())
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "call_already_starting", "a call for this appointment is already being set up, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
