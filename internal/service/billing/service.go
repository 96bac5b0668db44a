package billing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	"github.com/clinicore/clinic-api/internal/service/audit"
	"github.com/clinicore/clinic-api/internal/service/directory"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

// NumberPrefix is the bill identifier prefix.
const NumberPrefix = "BILL"

// maxNumberAttempts bounds identifier regeneration on collision.
const maxNumberAttempts = 5

// billableStatuses are the appointment statuses a bill may be
// generated for.
var billableStatuses = []model.AppointmentStatus{
	model.AppointmentStatusInProgress,
	model.AppointmentStatusCompleted,
}

// Service materializes bills from appointments and reconciles
// payments against them. Payment application serializes per bill so
// concurrent payments never lose an update.
type Service struct {
	bills        repository.BillRepository
	appointments repository.AppointmentRepository
	charges      repository.ChargeRepository
	directory    *directory.Service
	locker       lock.Locker
	auditor      *audit.Service
	metrics      *metrics.Metrics
	dueDays      int
}

func NewService(
	bills repository.BillRepository,
	appointments repository.AppointmentRepository,
	charges repository.ChargeRepository,
	directorySvc *directory.Service,
	locker lock.Locker,
	auditor *audit.Service,
	m *metrics.Metrics,
	dueDays int,
) *Service {
	return &Service{
		bills:        bills,
		appointments: appointments,
		charges:      charges,
		directory:    directorySvc,
		locker:       locker,
		auditor:      auditor,
		metrics:      m,
		dueDays:      dueDays,
	}
}

func generateNumber(date time.Time) string {
	return fmt.Sprintf("%s%s%04d", NumberPrefix, date.Format("20060102"), rand.Intn(10000))
}

func paymentKey(billID uuid.UUID) string {
	return fmt.Sprintf("payment:%s", billID)
}

func sumCharges(lines []model.ChargeLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Amount())
	}
	return total
}

// GenerateBill computes the charge breakdown for a billable
// appointment and creates its bill. Charge fields are fixed at
// creation; only the payment reconciler mutates the bill afterwards.
func (s *Service) GenerateBill(ctx context.Context, req *model.GenerateBillRequest) (*model.Bill, error) {
	apt, err := s.appointments.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}

	billable := false
	for _, status := range billableStatuses {
		if apt.Status == status {
			billable = true
			break
		}
	}
	if !billable {
		return nil, apperrors.Validation(
			fmt.Sprintf("appointment in status %s is not billable", apt.Status), nil)
	}

	if _, err := s.bills.GetByAppointment(ctx, apt.ID); err == nil {
		return nil, apperrors.Validation("a bill already exists for this appointment", nil)
	} else if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}

	doctor, err := s.directory.GetDoctor(ctx, apt.DoctorID)
	if err != nil {
		return nil, err
	}
	prescriptions, err := s.charges.ListPrescriptionCharges(ctx, apt.ID)
	if err != nil {
		return nil, err
	}
	labs, err := s.charges.ListLabCharges(ctx, apt.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	bill := &model.Bill{
		Base:               model.Base{ID: uuid.New()},
		PatientID:          apt.PatientID,
		AppointmentID:      &apt.ID,
		ConsultationCharge: doctor.ConsultationFee,
		MedicineCharge:     sumCharges(prescriptions),
		LabCharge:          sumCharges(labs),
		OtherCharge:        req.OtherCharge,
		DiscountPercent:    req.DiscountPercent,
		DiscountAmount:     req.DiscountAmount,
		TaxPercent:         req.TaxPercent,
		TaxAmount:          req.TaxAmount,
		Paid:               decimal.Zero,
		Status:             model.BillStatusPending,
		DueDate:            now.AddDate(0, 0, s.dueDays),
	}

	for attempt := 0; attempt < maxNumberAttempts; attempt++ {
		bill.Number = generateNumber(now)

		err := s.bills.Create(ctx, bill)
		if errors.Is(err, repository.ErrDuplicateIdentifier) {
			s.metrics.CodeRetriesTotal.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.BillsGenerated.Inc()
		s.auditor.Log(ctx, model.AuditEntityBill, bill.ID, model.AuditActionBill, "system", &audit.EmitOptions{
			NewStatus: string(bill.Status),
			Changes:   model.NewBillResponse(bill),
		})
		return bill, nil
	}
	return nil, apperrors.IdentifierExhausted(NumberPrefix, maxNumberAttempts)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Bill, error) {
	return s.bills.Get(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, billID uuid.UUID) ([]*model.PaymentTransaction, error) {
	return s.bills.ListPayments(ctx, billID)
}

// statusFor derives payment status as a pure function of total and
// paid. Overdue and cancelled are time/policy statuses owned outside
// the reconciler; they stick unless the payment moves the bill
// forward to partial or paid.
func statusFor(current model.BillStatus, total, paid decimal.Decimal) model.BillStatus {
	switch {
	case paid.GreaterThanOrEqual(total) && paid.IsPositive():
		return model.BillStatusPaid
	case paid.IsPositive():
		return model.BillStatusPartial
	case current == model.BillStatusOverdue || current == model.BillStatusCancelled:
		return current
	default:
		return model.BillStatusPending
	}
}

// ApplyPayment appends a payment transaction and atomically
// recomputes paid, balance and status from the full ledger.
func (s *Service) ApplyPayment(ctx context.Context, billID uuid.UUID, req *model.ApplyPaymentRequest) (*model.Bill, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.InvalidAmount("payment amount must be greater than zero")
	}

	var updated *model.Bill
	err := s.locker.WithLock(ctx, paymentKey(billID), func(lockCtx context.Context) error {
		bill, err := s.bills.Get(lockCtx, billID)
		if err != nil {
			return err
		}

		txn := &model.PaymentTransaction{
			ID:        uuid.New(),
			BillID:    bill.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: req.Reference,
			CreatedAt: time.Now(),
		}

		ledger, err := s.bills.ListPayments(lockCtx, billID)
		if err != nil {
			return err
		}
		paid := req.Amount
		for _, entry := range ledger {
			paid = paid.Add(entry.Amount)
		}

		oldStatus := bill.Status
		bill.Paid = paid
		bill.Status = statusFor(oldStatus, bill.Total(), paid)

		if err := s.bills.AddPayment(lockCtx, bill, txn); err != nil {
			return err
		}

		s.metrics.PaymentsApplied.WithLabelValues(string(req.Method)).Inc()
		amount, _ := req.Amount.Float64()
		s.metrics.PaymentAmount.Observe(amount)
		s.auditor.Log(lockCtx, model.AuditEntityBill, bill.ID, model.AuditActionPayment, "system", &audit.EmitOptions{
			OldStatus: string(oldStatus),
			NewStatus: string(bill.Status),
			Changes: map[string]interface{}{
				"transaction_id": txn.ID,
				"amount":         txn.Amount,
				"paid":           bill.Paid,
				"balance":        bill.Balance(),
			},
		})

		updated = bill
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, apperrors.Validation("bill is being updated concurrently, retry", err)
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkOverdue flips unpaid bills past their due date to overdue.
// Called by the background worker, not by payment application.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return s.bills.MarkOverdue(ctx, asOf)
}
