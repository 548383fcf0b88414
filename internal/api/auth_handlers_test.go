package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mednexus/telehealth-calls/internal/appointment"
	"github.com/mednexus/telehealth-calls/internal/auth"
)

func TestIssueToken(t *testing.T) {
	h := newHandlerHarness(t)
	manager := auth.NewManager("secret", time.Hour)
	tokens := NewAuthHandler(appointment.NewService(h.repo), manager)

	req := httptest.NewRequest("POST", "/api/auth/token",
		jsonBody(t, TokenRequest{UserID: h.detail.DoctorID.String(), Role: auth.RoleDoctor}))
	rec := httptest.NewRecorder()

	tokens.issueToken()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Dr. Bob", resp.Name)

	claims, err := manager.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, h.detail.DoctorID, claims.UserID)
	assert.Equal(t, auth.RoleDoctor, claims.Role)
}

func TestIssueTokenUnknownUser(t *testing.T) {
	h := newHandlerHarness(t)
	tokens := NewAuthHandler(appointment.NewService(h.repo), auth.NewManager("secret", time.Hour))

	req := httptest.NewRequest("POST", "/api/auth/token",
		jsonBody(t, TokenRequest{UserID: uuid.New().String(), Role: auth.RolePatient}))
	rec := httptest.NewRecorder()

	tokens.issueToken()(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestIssueTokenRejectsUnknownRole(t *testing.T) {
	h := newHandlerHarness(t)
	tokens := NewAuthHandler(appointment.NewService(h.repo), auth.NewManager("secret", time.Hour))

	req := httptest.NewRequest("POST", "/api/auth/token",
		jsonBody(t, TokenRequest{UserID: h.detail.PatientID.String(), Role: "admin"}))
	rec := httptest.NewRecorder()

	tokens.issueToken()(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteAppointment(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("POST", "/api/appointments/"+h.detail.ID.String()+"/complete", nil)
	req = withURLParam(h.asDoctor(req), "appointmentID", h.detail.ID.String())
	rec := httptest.NewRecorder()

	h.handler.completeAppointment()(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "completed", resp.Status)

	// Completing twice conflicts: the appointment is no longer confirmed.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/appointments/"+h.detail.ID.String()+"/complete", nil)
	req = withURLParam(h.asDoctor(req), "appointmentID", h.detail.ID.String())
	h.handler.completeAppointment()(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCompleteAppointmentRequiresOwnership(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("POST", "/api/appointments/"+h.detail.ID.String()+"/complete", nil)
	req = req.WithContext(auth.WithClaims(req.Context(), auth.Claims{
		UserID: uuid.New(),
		Role:   auth.RoleDoctor,
	}))
	req = withURLParam(req, "appointmentID", h.detail.ID.String())
	rec := httptest.NewRecorder()

	h.handler.completeAppointment()(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
