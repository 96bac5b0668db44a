package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
)

// ErrDuplicateIdentifier signals a generated appointment code or bill
// number collided with an existing row. Callers regenerate the
// identifier and retry a bounded number of times.
var ErrDuplicateIdentifier = errors.New("identifier already exists")

// All repository interfaces in one file
type (
	// DirectoryRepository reads doctor and patient identity records
	// owned by the external directory. The core never writes here.
	DirectoryRepository interface {
		GetDoctor(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	// ScheduleRepository reads recurring availability rules from the
	// schedule configuration store.
	ScheduleRepository interface {
		ListScheduleRules(ctx context.Context, doctorID uuid.UUID) ([]*model.ScheduleRule, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		GetByCode(ctx context.Context, code string) (*model.Appointment, error)
		UpdateStatus(ctx context.Context, appointment *model.Appointment) error
		ListForDoctorDay(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Appointment, error)
		// HasConflict scans active appointments for the doctor and date
		// against the half-open candidate interval.
		HasConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time, excludeID *uuid.UUID) (bool, error)
		// CreateRescheduled atomically inserts the successor and marks
		// the original rescheduled within one unit of work.
		CreateRescheduled(ctx context.Context, original *model.Appointment, successor *model.Appointment) error
	}

	// ChargeRepository reads clinical charge line items tied to an
	// appointment's medical record.
	ChargeRepository interface {
		ListPrescriptionCharges(ctx context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error)
		ListLabCharges(ctx context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error)
	}

	BillRepository interface {
		Create(ctx context.Context, bill *model.Bill) error
		Get(ctx context.Context, id uuid.UUID) (*model.Bill, error)
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Bill, error)
		// AddPayment appends the transaction and persists the
		// recomputed paid amount and status in one transaction.
		AddPayment(ctx context.Context, bill *model.Bill, txn *model.PaymentTransaction) error
		ListPayments(ctx context.Context, billID uuid.UUID) ([]*model.PaymentTransaction, error)
		// MarkOverdue flips unpaid bills past their due date to
		// overdue; used by the background worker, not the reconciler.
		MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
	}
)
