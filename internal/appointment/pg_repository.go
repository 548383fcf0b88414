package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var specialty *string

	err := row.Scan(
		&d.ID,
		&d.Name,
		&specialty,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.Specialty = specialty
	return &d, nil
}

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail

	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.DoctorID,
		&d.Status,
		&d.ScheduledAt,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.PatientName,
		&d.DoctorName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &d, nil
}

const detailSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.status, a.scheduled_at, a.created_at, a.updated_at,
	       p.name AS patient_name, d.name AS doctor_name
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors  d ON d.id = a.doctor_id
`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetDetailForPatient(ctx context.Context, id, patientID uuid.UUID) (*Detail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+`
		WHERE a.id = $1 AND a.patient_id = $2
	`, id, patientID)
	return scanDetail(row)
}

func (r *PgRepository) GetDetailForDoctor(ctx context.Context, id, doctorID uuid.UUID) (*Detail, error) {
	row := r.pool.QueryRow(ctx, detailSelect+`
		WHERE a.id = $1 AND a.doctor_id = $2
	`, id, doctorID)
	return scanDetail(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]Detail, error) {
	return r.list(ctx, "a.patient_id", patientID, status, limit, offset)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status Status, limit, offset int) ([]Detail, error) {
	return r.list(ctx, "a.doctor_id", doctorID, status, limit, offset)
}

func (r *PgRepository) list(ctx context.Context, ownerCol string, ownerID uuid.UUID, status Status, limit, offset int) ([]Detail, error) {
	query := detailSelect + `
		WHERE ` + ownerCol + ` = $1
		  AND ($2 = '' OR a.status = $2)
		ORDER BY a.scheduled_at
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, ownerID, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, doctor_id, status, scheduled_at, created_at, updated_at
	`, id, to, from)

	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Status,
		&a.ScheduledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}
