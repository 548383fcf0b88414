package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotConfirmed = errors.New("appointment is not confirmed")
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ForPatient loads an appointment owned by the given patient. A miss on either
// the id or the owner reads as not found.
func (s *Service) ForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error) {
	detail, err := s.repo.GetDetailForPatient(ctx, id, patientID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment for patient: %w", err)
	}
	return detail, nil
}

// ForDoctor loads an appointment owned by the given doctor.
func (s *Service) ForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Detail, error) {
	detail, err := s.repo.GetDetailForDoctor(ctx, id, doctorID)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment for doctor: %w", err)
	}
	return detail, nil
}

// ConfirmedForPatient is ForPatient plus the eligibility check used by the
// initiate-call flow: only confirmed appointments may start a call.
func (s *Service) ConfirmedForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error) {
	detail, err := s.ForPatient(ctx, id, patientID)
	if err != nil {
		return nil, err
	}
	if detail.Status != StatusConfirmed {
		return nil, ErrNotConfirmed
	}
	return detail, nil
}

func (s *Service) ConfirmedForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Detail, error) {
	detail, err := s.ForDoctor(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if detail.Status != StatusConfirmed {
		return nil, ErrNotConfirmed
	}
	return detail, nil
}

// Complete marks a confirmed appointment as completed, typically after its
// consultation call has ended. Only the owning doctor may complete it.
func (s *Service) Complete(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	if _, err := s.ForDoctor(ctx, id, doctorID); err != nil {
		return nil, err
	}

	appt, err := s.repo.UpdateStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Ownership checked above, so the miss means the status moved.
			return nil, ErrNotConfirmed
		}
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	return appt, nil
}

// Patient and Doctor expose identity lookups for token issuance.
func (s *Service) Patient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetPatientByID(ctx, id)
}

func (s *Service) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.repo.GetDoctorByID(ctx, id)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]Detail, error) {
	limit, offset = clampPage(limit, offset)
	appointments, err := s.repo.ListByPatient(ctx, patientID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) ListForDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]Detail, error) {
	limit, offset = clampPage(limit, offset)
	appointments, err := s.repo.ListByDoctor(ctx, doctorID, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50 // default
	}
	if limit > 200 {
		limit = 200 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
