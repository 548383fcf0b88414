package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mednexus/telehealth-calls/internal/appointment"
	"github.com/mednexus/telehealth-calls/internal/auth"
)

// AuthHandler issues bearer tokens for known patients and doctors. There is
// no password flow here; upstream identity is handled by the clinic's SSO and
// this endpoint exists for agents, simulation, and local development.
type AuthHandler struct {
	svc    *appointment.Service
	tokens *auth.Manager
}

func NewAuthHandler(svc *appointment.Service, tokens *auth.Manager) *AuthHandler {
	return &AuthHandler{svc: svc, tokens: tokens}
}

func (h *AuthHandler) issueToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "user_id must be a valid UUID")
			return
		}

		var name string
		switch req.Role {
		case auth.RolePatient:
			patient, err := h.svc.Patient(r.Context(), userID)
			if err != nil {
				handleIdentityError(w, err)
				return
			}
			name = patient.Name
		case auth.RoleDoctor:
			doctor, err := h.svc.Doctor(r.Context(), userID)
			if err != nil {
				handleIdentityError(w, err)
				return
			}
			name = doctor.Name
		default:
			writeError(w, http.StatusBadRequest, "invalid_role", "role must be patient or doctor")
			return
		}

		token, err := h.tokens.Issue(userID, req.Role)
		if err != nil {
			log.Printf("issue token for %s %s: %v", req.Role, userID, err)
			writeError(w, http.StatusInternalServerError, "internal_error", "could not issue token")
			return
		}

		writeJSON(w, http.StatusOK, TokenResponse{
			Token: token,
			Role:  req.Role,
			Name:  name,
		})
	}
}

func handleIdentityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func (h *CallHandler) completeAppointment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointmentID must be a valid UUID")
			return
		}

		appt, err := h.svc.Complete(r.Context(), appointmentID, auth.UserID(r.Context()))
		if err != nil {
			handleCallError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AppointmentResponse{
			ID:          appt.ID,
			PatientID:   appt.PatientID,
			DoctorID:    appt.DoctorID,
			Status:      string(appt.Status),
			ScheduledAt: appt.ScheduledAt.Unix(),
		})
	}
}
