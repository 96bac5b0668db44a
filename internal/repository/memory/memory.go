// Package memory provides in-memory repository implementations for
// single-process deployments and tests. They uphold the same
// atomicity contracts as the postgres repositories: check-then-insert
// for bookings and append-then-update for payments each run under the
// store mutex.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
)

// Store holds all records behind a single mutex. Repository views are
// obtained through Directory, Schedules, Appointments, Charges and
// Bills.
type Store struct {
	mu sync.Mutex

	doctors      map[uuid.UUID]*model.Doctor
	patients     map[uuid.UUID]*model.Patient
	rules        map[uuid.UUID][]*model.ScheduleRule
	appointments map[uuid.UUID]*model.Appointment
	bills        map[uuid.UUID]*model.Bill
	payments     map[uuid.UUID][]*model.PaymentTransaction

	prescriptionCharges map[uuid.UUID][]model.ChargeLine
	labCharges          map[uuid.UUID][]model.ChargeLine
}

func NewStore() *Store {
	return &Store{
		doctors:             make(map[uuid.UUID]*model.Doctor),
		patients:            make(map[uuid.UUID]*model.Patient),
		rules:               make(map[uuid.UUID][]*model.ScheduleRule),
		appointments:        make(map[uuid.UUID]*model.Appointment),
		bills:               make(map[uuid.UUID]*model.Bill),
		payments:            make(map[uuid.UUID][]*model.PaymentTransaction),
		prescriptionCharges: make(map[uuid.UUID][]model.ChargeLine),
		labCharges:          make(map[uuid.UUID][]model.ChargeLine),
	}
}

func (s *Store) Directory() repository.DirectoryRepository     { return directoryStore{s} }
func (s *Store) Schedules() repository.ScheduleRepository      { return scheduleStore{s} }
func (s *Store) Appointments() repository.AppointmentRepository { return appointmentStore{s} }
func (s *Store) Charges() repository.ChargeRepository          { return chargeStore{s} }
func (s *Store) Bills() repository.BillRepository              { return billStore{s} }

// Seed helpers

func (s *Store) AddDoctor(d *model.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors[d.ID] = d
}

func (s *Store) AddPatient(p *model.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
}

func (s *Store) AddScheduleRule(r *model.ScheduleRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.DoctorID] = append(s.rules[r.DoctorID], r)
}

func (s *Store) SetPrescriptionCharges(appointmentID uuid.UUID, lines []model.ChargeLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prescriptionCharges[appointmentID] = lines
}

func (s *Store) SetLabCharges(appointmentID uuid.UUID, lines []model.ChargeLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.labCharges[appointmentID] = lines
}

type directoryStore struct{ s *Store }

func (v directoryStore) GetDoctor(_ context.Context, id uuid.UUID) (*model.Doctor, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	d, ok := v.s.doctors[id]
	if !ok {
		return nil, apperrors.NotFound("doctor", nil)
	}
	copied := *d
	return &copied, nil
}

func (v directoryStore) GetPatient(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	p, ok := v.s.patients[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	copied := *p
	return &copied, nil
}

type scheduleStore struct{ s *Store }

func (v scheduleStore) ListScheduleRules(_ context.Context, doctorID uuid.UUID) ([]*model.ScheduleRule, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return append([]*model.ScheduleRule(nil), v.s.rules[doctorID]...), nil
}

type appointmentStore struct{ s *Store }

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func (s *Store) hasConflictLocked(doctorID uuid.UUID, date time.Time, start, end time.Time, excludeID *uuid.UUID) bool {
	for _, apt := range s.appointments {
		if apt.DoctorID != doctorID || !sameDay(apt.Date, date) || !apt.Status.IsActive() {
			continue
		}
		if excludeID != nil && apt.ID == *excludeID {
			continue
		}
		if model.Overlaps(apt.StartTime, apt.EndTime, start, end) {
			return true
		}
	}
	return false
}

func (s *Store) codeExistsLocked(code string) bool {
	for _, apt := range s.appointments {
		if apt.Code == code {
			return true
		}
	}
	return false
}

func (v appointmentStore) Create(_ context.Context, apt *model.Appointment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if v.s.hasConflictLocked(apt.DoctorID, apt.Date, apt.StartTime, apt.EndTime, nil) {
		return apperrors.SlotConflict("requested slot overlaps an existing appointment")
	}
	if v.s.codeExistsLocked(apt.Code) {
		return repository.ErrDuplicateIdentifier
	}

	now := time.Now()
	apt.CreatedAt = now
	apt.UpdatedAt = now
	copied := *apt
	v.s.appointments[apt.ID] = &copied
	return nil
}

func (v appointmentStore) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	apt, ok := v.s.appointments[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", nil)
	}
	copied := *apt
	return &copied, nil
}

func (v appointmentStore) GetByCode(_ context.Context, code string) (*model.Appointment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, apt := range v.s.appointments {
		if apt.Code == code {
			copied := *apt
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("appointment", nil)
}

func (v appointmentStore) UpdateStatus(_ context.Context, apt *model.Appointment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	stored, ok := v.s.appointments[apt.ID]
	if !ok {
		return apperrors.NotFound("appointment", nil)
	}
	stored.Status = apt.Status
	stored.CancelReason = apt.CancelReason
	stored.CancelledBy = apt.CancelledBy
	stored.CancelledAt = apt.CancelledAt
	stored.UpdatedAt = time.Now()
	return nil
}

func (v appointmentStore) ListForDoctorDay(_ context.Context, doctorID uuid.UUID, date time.Time) ([]*model.Appointment, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var out []*model.Appointment
	for _, apt := range v.s.appointments {
		if apt.DoctorID == doctorID && sameDay(apt.Date, date) {
			copied := *apt
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (v appointmentStore) HasConflict(_ context.Context, doctorID uuid.UUID, date time.Time, start, end time.Time, excludeID *uuid.UUID) (bool, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return v.s.hasConflictLocked(doctorID, date, start, end, excludeID), nil
}

func (v appointmentStore) CreateRescheduled(_ context.Context, original, successor *model.Appointment) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	stored, ok := v.s.appointments[original.ID]
	if !ok {
		return apperrors.NotFound("appointment", nil)
	}
	if v.s.hasConflictLocked(successor.DoctorID, successor.Date, successor.StartTime, successor.EndTime, &original.ID) {
		return apperrors.SlotConflict("requested slot overlaps an existing appointment")
	}
	if v.s.codeExistsLocked(successor.Code) {
		return repository.ErrDuplicateIdentifier
	}

	now := time.Now()
	successor.CreatedAt = now
	successor.UpdatedAt = now
	copied := *successor
	v.s.appointments[successor.ID] = &copied

	stored.Status = model.AppointmentStatusRescheduled
	stored.UpdatedAt = now
	return nil
}

type chargeStore struct{ s *Store }

func (v chargeStore) ListPrescriptionCharges(_ context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return append([]model.ChargeLine(nil), v.s.prescriptionCharges[appointmentID]...), nil
}

func (v chargeStore) ListLabCharges(_ context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return append([]model.ChargeLine(nil), v.s.labCharges[appointmentID]...), nil
}

type billStore struct{ s *Store }

func (v billStore) Create(_ context.Context, bill *model.Bill) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	for _, existing := range v.s.bills {
		if existing.Number == bill.Number {
			return repository.ErrDuplicateIdentifier
		}
		if bill.AppointmentID != nil && existing.AppointmentID != nil &&
			*existing.AppointmentID == *bill.AppointmentID {
			return apperrors.Validation("a bill already exists for this appointment", nil)
		}
	}

	now := time.Now()
	bill.CreatedAt = now
	bill.UpdatedAt = now
	copied := *bill
	v.s.bills[bill.ID] = &copied
	return nil
}

func (v billStore) Get(_ context.Context, id uuid.UUID) (*model.Bill, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	bill, ok := v.s.bills[id]
	if !ok {
		return nil, apperrors.NotFound("bill", nil)
	}
	copied := *bill
	return &copied, nil
}

func (v billStore) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.Bill, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, bill := range v.s.bills {
		if bill.AppointmentID != nil && *bill.AppointmentID == appointmentID {
			copied := *bill
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("bill", nil)
}

func (v billStore) AddPayment(_ context.Context, bill *model.Bill, txn *model.PaymentTransaction) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	stored, ok := v.s.bills[bill.ID]
	if !ok {
		return apperrors.NotFound("bill", nil)
	}

	copied := *txn
	v.s.payments[bill.ID] = append(v.s.payments[bill.ID], &copied)

	stored.Paid = bill.Paid
	stored.Status = bill.Status
	stored.UpdatedAt = time.Now()
	return nil
}

func (v billStore) ListPayments(_ context.Context, billID uuid.UUID) ([]*model.PaymentTransaction, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return append([]*model.PaymentTransaction(nil), v.s.payments[billID]...), nil
}

func (v billStore) MarkOverdue(_ context.Context, asOf time.Time) (int64, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	var marked int64
	for _, bill := range v.s.bills {
		if (bill.Status == model.BillStatusPending || bill.Status == model.BillStatusPartial) &&
			bill.DueDate.Before(asOf) {
			bill.Status = model.BillStatusOverdue
			bill.UpdatedAt = time.Now()
			marked++
		}
	}
	return marked, nil
}
