package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
)

const appointmentColumns = `
	id, code, patient_id, doctor_id, date, start_time, end_time,
	type, priority, status, reason, cancel_reason, cancelled_by,
	cancelled_at, rescheduled_from, created_at, updated_at
`

// conflictExistsQuery implements half-open interval overlap: a taken
// slot [s,e) conflicts with the candidate [$4,$5) iff s < $5 AND e > $4.
// Only appointments in an active status hold their slot.
const conflictExistsQuery = `
	SELECT EXISTS (
		SELECT 1 FROM appointments
		WHERE doctor_id = $1
		AND date = $2
		AND status IN ('scheduled', 'confirmed', 'in_progress', 'completed')
		AND ($3::uuid IS NULL OR id != $3)
		AND start_time < $5
		AND end_time > $4
	)
`

// lockDoctorDay serializes concurrent booking transactions for the
// same doctor and date, so the conflict re-check and the insert form
// one atomic unit even across API instances sharing the database.
func lockDoctorDay(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date time.Time) error {
	key := fmt.Sprintf("%s:%s", doctorID, date.Format(model.DateOnly))
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("failed to lock doctor day: %w", err)
	}
	return nil
}

func conflictInTx(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, date time.Time, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	var hasConflict bool
	if err := tx.GetContext(ctx, &hasConflict, conflictExistsQuery, doctorID, sqlDate(date), excludeID, start, end); err != nil {
		return false, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return hasConflict, nil
}

func insertAppointment(ctx context.Context, tx *sqlx.Tx, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		apt.ID, apt.Code, apt.PatientID, apt.DoctorID, sqlDate(apt.Date),
		apt.StartTime, apt.EndTime, apt.Type, apt.Priority, apt.Status,
		apt.Reason, apt.CancelReason, apt.CancelledBy, apt.CancelledAt,
		apt.RescheduledFrom, apt.CreatedAt, apt.UpdatedAt,
	)
	return err
}

// Create inserts the appointment after re-checking the slot inside a
// single serialized transaction. Returns SlotConflict when another
// active appointment overlaps, and ErrDuplicateIdentifier when the
// generated code collides so the caller can retry generation.
func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	now := time.Now()
	apt.CreatedAt = now
	apt.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockDoctorDay(ctx, tx, apt.DoctorID, apt.Date); err != nil {
			return err
		}

		hasConflict, err := conflictInTx(ctx, tx, apt.DoctorID, apt.Date, apt.StartTime, apt.EndTime, nil)
		if err != nil {
			return err
		}
		if hasConflict {
			return apperrors.SlotConflict("requested slot overlaps an existing appointment")
		}

		if err := insertAppointment(ctx, tx, apt); err != nil {
			if isUniqueViolation(err, "appointments_code_key") {
				return repository.ErrDuplicateIdentifier
			}
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

func (r *appointmentRepository) GetByCode(ctx context.Context, code string) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE code = $1`

	var apt model.Appointment
	err := r.db.GetContext(ctx, &apt, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("appointment", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &apt, nil
}

// UpdateStatus persists a status transition together with its cancel
// metadata. Start and end times are immutable after booking, so they
// are deliberately absent from the SET list.
func (r *appointmentRepository) UpdateStatus(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments
		SET status = $1, cancel_reason = $2, cancelled_by = $3,
		    cancelled_at = $4, updated_at = $5
		WHERE id = $6
	`
	apt.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx, query,
		apt.Status,
		apt.CancelReason,
		apt.CancelledBy,
		apt.CancelledAt,
		apt.UpdatedAt,
		apt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return apperrors.NotFound("appointment", nil)
	}
	return nil
}

func (r *appointmentRepository) ListForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_time ASC
	`
	var appointments []*model.Appointment
	err := r.db.SelectContext(ctx, &appointments, query, doctorID, sqlDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) HasConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	var hasConflict bool
	err := r.db.GetContext(ctx, &hasConflict, conflictExistsQuery, doctorID, sqlDate(date), excludeID, start, end)
	if err != nil {
		return false, fmt.Errorf("failed to check conflicts: %w", err)
	}
	return hasConflict, nil
}

// CreateRescheduled inserts the successor and marks the original
// rescheduled in one transaction, excluding the original's own slot
// from the conflict re-check.
func (r *appointmentRepository) CreateRescheduled(ctx context.Context, original, successor *model.Appointment) error {
	now := time.Now()
	successor.CreatedAt = now
	successor.UpdatedAt = now

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := lockDoctorDay(ctx, tx, successor.DoctorID, successor.Date); err != nil {
			return err
		}

		hasConflict, err := conflictInTx(ctx, tx, successor.DoctorID, successor.Date,
			successor.StartTime, successor.EndTime, &original.ID)
		if err != nil {
			return err
		}
		if hasConflict {
			return apperrors.SlotConflict("requested slot overlaps an existing appointment")
		}

		if err := insertAppointment(ctx, tx, successor); err != nil {
			if isUniqueViolation(err, "appointments_code_key") {
				return repository.ErrDuplicateIdentifier
			}
			return fmt.Errorf("failed to create rescheduled appointment: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE appointments SET status = $1, updated_at = $2 WHERE id = $3`,
			model.AppointmentStatusRescheduled, now, original.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to mark original rescheduled: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NotFound("appointment", nil)
		}
		return nil
	})
}
