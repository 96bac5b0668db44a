package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	"github.com/clinicore/clinic-api/internal/service/audit"
	"github.com/clinicore/clinic-api/internal/service/directory"
	"github.com/clinicore/clinic-api/internal/service/schedule"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

// Service orchestrates booking and the appointment lifecycle. The
// check-then-insert of a booking runs under a per-(doctor,date) lock
// so two concurrent requests for overlapping slots can never both
// succeed.
type Service struct {
	repo      repository.AppointmentRepository
	directory *directory.Service
	schedule  *schedule.Service
	locker    lock.Locker
	auditor   *audit.Service
	metrics   *metrics.Metrics
	loc       *time.Location
}

func NewService(
	repo repository.AppointmentRepository,
	directorySvc *directory.Service,
	scheduleSvc *schedule.Service,
	locker lock.Locker,
	auditor *audit.Service,
	m *metrics.Metrics,
	loc *time.Location,
) *Service {
	return &Service{
		repo:      repo,
		directory: directorySvc,
		schedule:  scheduleSvc,
		locker:    locker,
		auditor:   auditor,
		metrics:   m,
		loc:       loc,
	}
}

// bookingKey scopes the critical section to one doctor's calendar day.
func bookingKey(doctorID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("booking:%s:%s", doctorID, date.Format(model.DateOnly))
}

func (s *Service) parseSlot(dateStr, timeStr string) (date, start time.Time, err error) {
	date, err = time.ParseInLocation(model.DateOnly, dateStr, s.loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("invalid date", err)
	}
	minutes, err := model.ParseClockTime(timeStr)
	if err != nil {
		return time.Time{}, time.Time{}, apperrors.Validation("invalid start time", err)
	}
	return date, model.ClockTimeAt(date, minutes, s.loc), nil
}

// resolveSlot validates the requested start against the doctor's open
// windows and derives the slot end from the consultation duration.
func (s *Service) resolveSlot(ctx context.Context, doctor *model.Doctor, date, start time.Time) (time.Time, error) {
	end := start.Add(doctor.ConsultationDuration())

	windows, err := s.schedule.OpenWindows(ctx, doctor.ID, date)
	if err != nil {
		return time.Time{}, err
	}
	for _, w := range windows {
		if w.Contains(start, end) {
			return end, nil
		}
	}
	return time.Time{}, apperrors.DoctorUnavailable("doctor has no open window covering the requested slot")
}

// Book admits or rejects a new appointment.
func (s *Service) Book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	timer := prometheus.NewTimer(s.metrics.BookingLatency)
	defer timer.ObserveDuration()

	apt, err := s.book(ctx, req)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrSlotConflict) {
			s.metrics.SlotConflicts.Inc()
			s.metrics.BookingsTotal.WithLabelValues("conflict").Inc()
		} else {
			s.metrics.BookingsTotal.WithLabelValues("rejected").Inc()
		}
		return nil, err
	}

	s.metrics.BookingsTotal.WithLabelValues("booked").Inc()
	s.auditor.Log(ctx, model.AuditEntityAppointment, apt.ID, model.AuditActionBook, "system", &audit.EmitOptions{
		NewStatus: string(apt.Status),
		Changes:   apt,
	})
	return apt, nil
}

func (s *Service) book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	date, start, err := s.parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}

	if _, err := s.directory.GetPatient(ctx, req.PatientID); err != nil {
		return nil, err
	}
	doctor, err := s.directory.GetDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Available {
		return nil, apperrors.DoctorUnavailable("doctor is not accepting appointments")
	}

	end, err := s.resolveSlot(ctx, doctor, date, start)
	if err != nil {
		return nil, err
	}

	priority := req.Priority
	if priority == "" {
		priority = model.AppointmentPriorityNormal
	}

	var created *model.Appointment
	err = s.locker.WithLock(ctx, bookingKey(doctor.ID, date), func(lockCtx context.Context) error {
		hasConflict, err := s.repo.HasConflict(lockCtx, doctor.ID, date, start, end, nil)
		if err != nil {
			return fmt.Errorf("failed to check conflicts: %w", err)
		}
		if hasConflict {
			return apperrors.SlotConflict("requested slot overlaps an existing appointment")
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			apt := &model.Appointment{
				Base:      model.Base{ID: uuid.New()},
				Code:      generateCode(date),
				PatientID: req.PatientID,
				DoctorID:  doctor.ID,
				Date:      date,
				StartTime: start,
				EndTime:   end,
				Type:      req.Type,
				Priority:  priority,
				Status:    model.AppointmentStatusScheduled,
				Reason:    req.Reason,
			}

			err := s.repo.Create(lockCtx, apt)
			if errors.Is(err, repository.ErrDuplicateIdentifier) {
				s.metrics.CodeRetriesTotal.Inc()
				continue
			}
			if err != nil {
				return err
			}
			created = apt
			return nil
		}
		return apperrors.IdentifierExhausted(CodePrefix, maxCodeAttempts)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperrors.SlotConflict("slot is being booked concurrently, retry")
	}
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListForDoctorDay(ctx context.Context, doctorID uuid.UUID, dateStr string) ([]*model.Appointment, error) {
	date, err := time.ParseInLocation(model.DateOnly, dateStr, s.loc)
	if err != nil {
		return nil, apperrors.Validation("invalid date", err)
	}
	return s.repo.ListForDoctorDay(ctx, doctorID, date)
}

// OpenWindows exposes schedule resolution for availability queries.
func (s *Service) OpenWindows(ctx context.Context, doctorID uuid.UUID, dateStr string) ([]model.TimeWindow, error) {
	date, err := time.ParseInLocation(model.DateOnly, dateStr, s.loc)
	if err != nil {
		return nil, apperrors.Validation("invalid date", err)
	}
	return s.schedule.OpenWindows(ctx, doctorID, date)
}

// transition applies a legal status move and emits the audit event.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to model.AppointmentStatus, actor string, mutate func(*model.Appointment)) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := apt.Status
	if !CanTransition(from, to) {
		return nil, apperrors.InvalidTransition(string(from), string(to))
	}

	apt.Status = to
	if mutate != nil {
		mutate(apt)
	}

	if err := s.repo.UpdateStatus(ctx, apt); err != nil {
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(to)).Inc()
	s.auditor.Log(ctx, model.AuditEntityAppointment, apt.ID, model.AuditActionTransition, actor, &audit.EmitOptions{
		OldStatus: string(from),
		NewStatus: string(to),
	})
	return apt, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor string) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusConfirmed, actor, nil)
}

// CheckIn moves a confirmed appointment to in-progress when the
// patient arrives.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, actor string) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusInProgress, actor, nil)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor string) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusCompleted, actor, nil)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor string) (*model.Appointment, error) {
	return s.transition(ctx, id, model.AppointmentStatusNoShow, actor, nil)
}

// Cancel requires a reason and records who cancelled and when.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason, actor string) (*model.Appointment, error) {
	if reason == "" {
		return nil, apperrors.Validation("cancellation requires a reason", nil)
	}
	return s.transition(ctx, id, model.AppointmentStatusCancelled, actor, func(apt *model.Appointment) {
		now := time.Now()
		apt.CancelReason = &reason
		apt.CancelledBy = &actor
		apt.CancelledAt = &now
	})
}

// Reschedule books a successor slot and marks the original
// rescheduled in one unit of work. The original's own interval is
// excluded from the conflict check so an appointment can move within
// its old slot.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	original, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(original.Status, model.AppointmentStatusRescheduled) {
		return nil, apperrors.InvalidTransition(string(original.Status), string(model.AppointmentStatusRescheduled))
	}

	date, start, err := s.parseSlot(req.Date, req.StartTime)
	if err != nil {
		return nil, err
	}
	doctor, err := s.directory.GetDoctor(ctx, original.DoctorID)
	if err != nil {
		return nil, err
	}
	end, err := s.resolveSlot(ctx, doctor, date, start)
	if err != nil {
		return nil, err
	}

	var successor *model.Appointment
	err = s.locker.WithLock(ctx, bookingKey(doctor.ID, date), func(lockCtx context.Context) error {
		hasConflict, err := s.repo.HasConflict(lockCtx, doctor.ID, date, start, end, &original.ID)
		if err != nil {
			return fmt.Errorf("failed to check conflicts: %w", err)
		}
		if hasConflict {
			return apperrors.SlotConflict("requested slot overlaps an existing appointment")
		}

		for attempt := 0; attempt < maxCodeAttempts; attempt++ {
			candidate := &model.Appointment{
				Base:            model.Base{ID: uuid.New()},
				Code:            generateCode(date),
				PatientID:       original.PatientID,
				DoctorID:        original.DoctorID,
				Date:            date,
				StartTime:       start,
				EndTime:         end,
				Type:            original.Type,
				Priority:        original.Priority,
				Status:          model.AppointmentStatusScheduled,
				Reason:          original.Reason,
				RescheduledFrom: &original.ID,
			}

			err := s.repo.CreateRescheduled(lockCtx, original, candidate)
			if errors.Is(err, repository.ErrDuplicateIdentifier) {
				s.metrics.CodeRetriesTotal.Inc()
				continue
			}
			if err != nil {
				return err
			}
			successor = candidate
			return nil
		}
		return apperrors.IdentifierExhausted(CodePrefix, maxCodeAttempts)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperrors.SlotConflict("slot is being booked concurrently, retry")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.Transitions.WithLabelValues(string(model.AppointmentStatusRescheduled)).Inc()
	s.auditor.Log(ctx, model.AuditEntityAppointment, original.ID, model.AuditActionReschedule, req.Actor, &audit.EmitOptions{
		OldStatus: string(original.Status),
		NewStatus: string(model.AppointmentStatusRescheduled),
		Changes: map[string]interface{}{
			"successor_id":   successor.ID,
			"successor_code": successor.Code,
		},
	})
	return successor, nil
}
