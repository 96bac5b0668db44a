package billing

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository/memory"
	"github.com/clinicore/clinic-api/internal/service/audit"
	"github.com/clinicore/clinic-api/internal/service/directory"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

// Registered once; promauto panics on duplicate registration.
var testMetrics = metrics.NewMetrics("clinic", "billing_test")

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store   *memory.Store
	svc     *Service
	doctor  *model.Doctor
	patient *model.Patient
	seeded  int
}

func newFixture(t *testing.T, dueDays int) *fixture {
	t.Helper()

	store := memory.NewStore()

	doctor := &model.Doctor{
		ID:                          uuid.New(),
		Name:                        "Dr. Mehta",
		ConsultationDurationMinutes: 30,
		ConsultationFee:             dec("50.00"),
		Available:                   true,
	}
	store.AddDoctor(doctor)

	patient := &model.Patient{ID: uuid.New(), Name: "Asha Rao"}
	store.AddPatient(patient)

	l := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	auditor := audit.NewService(messaging.NewLogBroker(l.Zerolog()), l, testMetrics)
	directorySvc := directory.NewService(store.Directory(), time.Minute)

	svc := NewService(store.Bills(), store.Appointments(), store.Charges(),
		directorySvc, lock.NewLocalLocker(), auditor, testMetrics, dueDays)

	return &fixture{store: store, svc: svc, doctor: doctor, patient: patient}
}

// seedAppointment inserts a visit in the given status directly into
// the store. Slots are staggered so one fixture can hold several
// active visits without tripping conflict enforcement.
func (f *fixture) seedAppointment(t *testing.T, status model.AppointmentStatus) *model.Appointment {
	t.Helper()

	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC).
		Add(time.Duration(f.seeded) * 30 * time.Minute)
	f.seeded++
	apt := &model.Appointment{
		Base:      model.Base{ID: uuid.New()},
		Code:      "APT" + uuid.NewString()[:8],
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		Date:      start.Truncate(24 * time.Hour),
		StartTime: start,
		EndTime:   start.Add(30 * time.Minute),
		Type:      model.AppointmentTypeRegular,
		Priority:  model.AppointmentPriorityNormal,
		Status:    model.AppointmentStatusScheduled,
	}
	require.NoError(t, f.store.Appointments().Create(context.Background(), apt))
	apt.Status = status
	require.NoError(t, f.store.Appointments().UpdateStatus(context.Background(), apt))
	return apt
}

// seedChargedVisit sets up a completed visit with medicine charges of
// 12.50 and lab charges of 25.00 on top of the 50.00 consultation fee.
func (f *fixture) seedChargedVisit(t *testing.T) *model.Appointment {
	t.Helper()

	apt := f.seedAppointment(t, model.AppointmentStatusCompleted)
	f.store.SetPrescriptionCharges(apt.ID, []model.ChargeLine{
		{Description: "paracetamol 500mg", Quantity: 5, UnitPrice: dec("2.50")},
	})
	f.store.SetLabCharges(apt.ID, []model.ChargeLine{
		{Description: "complete blood count", Quantity: 1, UnitPrice: dec("25.00")},
	})
	return apt
}

func TestGenerateBill(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{
		AppointmentID:   apt.ID,
		DiscountPercent: dec("10"),
		TaxPercent:      dec("5"),
	})
	require.NoError(t, err)

	assert.Regexp(t, `^BILL\d{8}\d{4}$`, bill.Number)
	assert.Equal(t, model.BillStatusPending, bill.Status)
	assert.True(t, bill.ConsultationCharge.Equal(dec("50.00")))
	assert.True(t, bill.MedicineCharge.Equal(dec("12.50")))
	assert.True(t, bill.LabCharge.Equal(dec("25.00")))
	assert.True(t, bill.Subtotal().Equal(dec("87.50")), "subtotal %s", bill.Subtotal())

	// 87.50 - 8.75 + 4.375 = 83.125, rounded half-up.
	assert.True(t, bill.Total().Equal(dec("83.13")), "total %s", bill.Total())
	assert.True(t, bill.Balance().Equal(dec("83.13")), "balance %s", bill.Balance())

	wantDue := time.Now().AddDate(0, 0, 14)
	assert.WithinDuration(t, wantDue, bill.DueDate, time.Minute)
}

func TestGenerateBillFlatAdjustments(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{
		AppointmentID:  apt.ID,
		OtherCharge:    dec("10.00"),
		DiscountAmount: dec("7.50"),
		TaxAmount:      dec("3.00"),
	})
	require.NoError(t, err)

	// 97.50 - 7.50 + 3.00
	assert.True(t, bill.Subtotal().Equal(dec("97.50")))
	assert.True(t, bill.Total().Equal(dec("93.00")), "total %s", bill.Total())
}

func TestGenerateBillClampsAtZero(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedAppointment(t, model.AppointmentStatusCompleted)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{
		AppointmentID:  apt.ID,
		DiscountAmount: dec("1000.00"),
	})
	require.NoError(t, err)
	assert.True(t, bill.Total().Equal(decimal.Zero), "total %s", bill.Total())
}

func TestGenerateBillNotBillable(t *testing.T) {
	f := newFixture(t, 14)

	for _, status := range []model.AppointmentStatus{
		model.AppointmentStatusScheduled,
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCancelled,
		model.AppointmentStatusNoShow,
	} {
		apt := f.seedAppointment(t, status)
		_, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
		assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "status %s", status)
	}
}

func TestGenerateBillInProgress(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedAppointment(t, model.AppointmentStatusInProgress)

	_, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	assert.NoError(t, err)
}

func TestGenerateBillDuplicate(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	_, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	_, err = f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestGenerateBillUnknownAppointment(t *testing.T) {
	f := newFixture(t, 14)

	_, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: uuid.New()})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestApplyPayment(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{
		AppointmentID:   apt.ID,
		DiscountPercent: dec("10"),
		TaxPercent:      dec("5"),
	})
	require.NoError(t, err)

	// First payment covers part of the 83.13 total.
	bill, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: dec("40.00"), Method: model.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusPartial, bill.Status)
	assert.True(t, bill.Paid.Equal(dec("40.00")))
	assert.True(t, bill.Balance().Equal(dec("43.13")), "balance %s", bill.Balance())

	// Second payment settles the remainder.
	bill, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: dec("43.13"), Method: model.PaymentMethodUPI,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusPaid, bill.Status)
	assert.True(t, bill.Paid.Equal(dec("83.13")))
	assert.True(t, bill.Balance().IsZero(), "balance %s", bill.Balance())

	ledger, err := f.svc.ListPayments(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestApplyPaymentInvalidAmount(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedAppointment(t, model.AppointmentStatusCompleted)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	_, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: decimal.Zero, Method: model.PaymentMethodCash,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))

	_, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: dec("-5.00"), Method: model.PaymentMethodCash,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidAmount))
}

func TestApplyPaymentUnknownBill(t *testing.T) {
	f := newFixture(t, 14)

	_, err := f.svc.ApplyPayment(context.Background(), uuid.New(), &model.ApplyPaymentRequest{
		Amount: dec("10.00"), Method: model.PaymentMethodCash,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOverpayment(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	bill, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: dec("100.00"), Method: model.PaymentMethodCard,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusPaid, bill.Status)
	assert.True(t, bill.Balance().IsNegative())
}

// TestConcurrentPayments applies payments in parallel and verifies the
// ledger sum survives: no update may be lost.
func TestConcurrentPayments(t *testing.T) {
	f := newFixture(t, 14)
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	const workers = 5
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
				Amount: dec("10.00"), Method: model.PaymentMethodCash,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := f.svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.True(t, stored.Paid.Equal(dec("50.00")), "paid %s", stored.Paid)
	assert.Equal(t, model.BillStatusPartial, stored.Status)

	ledger, err := f.svc.ListPayments(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, workers)
}

func TestMarkOverdue(t *testing.T) {
	f := newFixture(t, -1) // already past due at creation
	apt := f.seedChargedVisit(t)

	bill, err := f.svc.GenerateBill(context.Background(), &model.GenerateBillRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	marked, err := f.svc.MarkOverdue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	stored, err := f.svc.Get(context.Background(), bill.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusOverdue, stored.Status)

	// A payment moves an overdue bill forward, not back to pending.
	stored, err = f.svc.ApplyPayment(context.Background(), bill.ID, &model.ApplyPaymentRequest{
		Amount: dec("10.00"), Method: model.PaymentMethodCash,
	})
	require.NoError(t, err)
	assert.Equal(t, model.BillStatusPartial, stored.Status)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name    string
		current model.BillStatus
		total   string
		paid    string
		want    model.BillStatus
	}{
		{"untouched", model.BillStatusPending, "100", "0", model.BillStatusPending},
		{"partial", model.BillStatusPending, "100", "40", model.BillStatusPartial},
		{"settled", model.BillStatusPartial, "100", "100", model.BillStatusPaid},
		{"overpaid", model.BillStatusPartial, "100", "120", model.BillStatusPaid},
		{"overdue sticks unpaid", model.BillStatusOverdue, "100", "0", model.BillStatusOverdue},
		{"overdue moves on payment", model.BillStatusOverdue, "100", "50", model.BillStatusPartial},
		{"cancelled sticks unpaid", model.BillStatusCancelled, "100", "0", model.BillStatusCancelled},
		{"zero total unpaid", model.BillStatusPending, "0", "0", model.BillStatusPending},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := statusFor(tc.current, dec(tc.total), dec(tc.paid))
			assert.Equal(t, tc.want, got)
		})
	}
}
