package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Ownership-scoped lookups: a miss on either the appointment id or the
	// owning party reads as not found, which is what the API reports.
	GetDetailForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error)
	GetDetailForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Detail, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]Detail, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]Detail, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
}
