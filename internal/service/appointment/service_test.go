package appointment

import (
	"context"
	"io"
	"math/rand"
	"sort"
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
	"github.com/clinicore/clinic-api/internal/service/schedule"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
	"github.com/clinicore/clinic-api/pkg/lock"
	"github.com/clinicore/clinic-api/pkg/logger"
	"github.com/clinicore/clinic-api/pkg/messaging"
	"github.com/clinicore/clinic-api/pkg/metrics"
)

// Registered once; promauto panics on duplicate registration.
var testMetrics = metrics.NewMetrics("clinic", "appointment_test")

const testDate = "2025-06-02" // a Monday

type fixture struct {
	store   *memory.Store
	svc     *Service
	doctor  *model.Doctor
	patient *model.Patient
}

func strPtr(s string) *string { return &s }

// newFixture seeds one doctor working Mondays 09:00-13:00 with a
// 10:30-10:45 break and 30-minute consultation slots.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()

	doctor := &model.Doctor{
		ID:                          uuid.New(),
		Name:                        "Dr. Mehta",
		Specialization:              "general",
		ConsultationDurationMinutes: 30,
		ConsultationFee:             decimal.RequireFromString("500"),
		Available:                   true,
	}
	store.AddDoctor(doctor)

	patient := &model.Patient{ID: uuid.New(), Name: "Asha Rao"}
	store.AddPatient(patient)

	store.AddScheduleRule(&model.ScheduleRule{
		ID:            uuid.New(),
		DoctorID:      doctor.ID,
		DayOfWeek:     time.Monday,
		StartTime:     "09:00",
		EndTime:       "13:00",
		BreakStart:    strPtr("10:30"),
		BreakEnd:      strPtr("10:45"),
		Available:     true,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	l := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	auditor := audit.NewService(messaging.NewLogBroker(l.Zerolog()), l, testMetrics)
	directorySvc := directory.NewService(store.Directory(), time.Minute)
	scheduleSvc := schedule.NewService(store.Schedules(), time.UTC)

	svc := NewService(store.Appointments(), directorySvc, scheduleSvc,
		lock.NewLocalLocker(), auditor, testMetrics, time.UTC)

	return &fixture{store: store, svc: svc, doctor: doctor, patient: patient}
}

func (f *fixture) book(startTime string) (*model.Appointment, error) {
	return f.svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID: f.patient.ID,
		DoctorID:  f.doctor.ID,
		Date:      testDate,
		StartTime: startTime,
		Type:      model.AppointmentTypeRegular,
		Reason:    "follow up",
	})
}

func TestBook(t *testing.T) {
	f := newFixture(t)

	apt, err := f.book("09:00")
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, model.AppointmentPriorityNormal, apt.Priority)
	assert.Regexp(t, `^APT20250602\d{4}$`, apt.Code)
	assert.Equal(t, 30*time.Minute, apt.EndTime.Sub(apt.StartTime))

	stored, err := f.svc.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt.Code, stored.Code)
}

func TestBookAroundBreak(t *testing.T) {
	f := newFixture(t)

	// Ends exactly at break start; half-open intervals touch cleanly.
	_, err := f.book("10:00")
	assert.NoError(t, err)

	// Starts exactly at break end.
	_, err = f.book("10:45")
	assert.NoError(t, err)

	// Would run into the break.
	_, err = f.book("10:20")
	assert.True(t, apperrors.Is(err, apperrors.ErrDoctorUnavailable))
}

func TestBookOutsideWorkingHours(t *testing.T) {
	f := newFixture(t)

	_, err := f.book("08:45")
	assert.True(t, apperrors.Is(err, apperrors.ErrDoctorUnavailable))

	// Slot would end past closing time.
	_, err = f.book("12:45")
	assert.True(t, apperrors.Is(err, apperrors.ErrDoctorUnavailable))

	_, err = f.book("12:30")
	assert.NoError(t, err)
}

func TestBookConflict(t *testing.T) {
	f := newFixture(t)

	_, err := f.book("09:00")
	require.NoError(t, err)

	_, err = f.book("09:00")
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))

	// Partial overlap conflicts too.
	_, err = f.book("09:15")
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))

	// Back-to-back does not.
	_, err = f.book("09:30")
	assert.NoError(t, err)
}

func TestBookDoctorNotAccepting(t *testing.T) {
	f := newFixture(t)

	off := &model.Doctor{
		ID:                          uuid.New(),
		Name:                        "Dr. Iyer",
		ConsultationDurationMinutes: 30,
		Available:                   false,
	}
	f.store.AddDoctor(off)

	_, err := f.svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID: f.patient.ID,
		DoctorID:  off.ID,
		Date:      testDate,
		StartTime: "09:00",
		Type:      model.AppointmentTypeRegular,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrDoctorUnavailable))
}

func TestBookUnknownParticipants(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID: uuid.New(),
		DoctorID:  f.doctor.ID,
		Date:      testDate,
		StartTime: "09:00",
		Type:      model.AppointmentTypeRegular,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	_, err = f.svc.Book(context.Background(), &model.BookAppointmentRequest{
		PatientID: f.patient.ID,
		DoctorID:  uuid.New(),
		Date:      testDate,
		StartTime: "09:00",
		Type:      model.AppointmentTypeRegular,
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestConcurrentBookingSameSlot(t *testing.T) {
	f := newFixture(t)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.book("11:00")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var booked, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			booked++
		case apperrors.Is(err, apperrors.ErrSlotConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, booked)
	assert.Equal(t, workers-1, conflicts)
}

func TestCancelledSlotReopens(t *testing.T) {
	f := newFixture(t)

	apt, err := f.book("09:00")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), apt.ID, "patient request", "reception")
	require.NoError(t, err)

	_, err = f.book("09:00")
	assert.NoError(t, err)
}

func TestLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.book("09:00")
	require.NoError(t, err)

	apt, err = f.svc.Confirm(ctx, apt.ID, "reception")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, apt.Status)

	apt, err = f.svc.CheckIn(ctx, apt.ID, "reception")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInProgress, apt.Status)

	apt, err = f.svc.Complete(ctx, apt.ID, "doctor")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, apt.Status)

	// Completed is terminal.
	_, err = f.svc.Confirm(ctx, apt.ID, "reception")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.book("09:00")
	require.NoError(t, err)

	// Check-in requires confirmation first.
	_, err = f.svc.CheckIn(ctx, apt.ID, "reception")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	// No-show only applies to confirmed appointments.
	_, err = f.svc.MarkNoShow(ctx, apt.ID, "reception")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))

	_, err = f.svc.Complete(ctx, apt.ID, "doctor")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestNoShow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.book("09:00")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, apt.ID, "reception")
	require.NoError(t, err)

	apt, err = f.svc.MarkNoShow(ctx, apt.ID, "reception")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusNoShow, apt.Status)

	// A no-show releases its slot.
	_, err = f.book("09:00")
	assert.NoError(t, err)
}

func TestCancelRequiresReason(t *testing.T) {
	f := newFixture(t)

	apt, err := f.book("09:00")
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), apt.ID, "", "reception")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestCancelRecordsMetadata(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.book("09:00")
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, apt.ID, "patient request", "reception")
	require.NoError(t, err)

	stored, err := f.svc.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelReason)
	assert.Equal(t, "patient request", *stored.CancelReason)
	require.NotNil(t, stored.CancelledBy)
	assert.Equal(t, "reception", *stored.CancelledBy)
	assert.NotNil(t, stored.CancelledAt)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	original, err := f.book("09:00")
	require.NoError(t, err)

	// Moving within the old slot is allowed; the original's own
	// interval is excluded from the conflict check.
	successor, err := f.svc.Reschedule(ctx, original.ID, &model.RescheduleAppointmentRequest{
		Date:      testDate,
		StartTime: "09:15",
		Actor:     "reception",
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, successor.Status)
	require.NotNil(t, successor.RescheduledFrom)
	assert.Equal(t, original.ID, *successor.RescheduledFrom)
	assert.NotEqual(t, original.Code, successor.Code)

	stored, err := f.svc.Get(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusRescheduled, stored.Status)

	// The original record is terminal.
	_, err = f.svc.Reschedule(ctx, original.ID, &model.RescheduleAppointmentRequest{
		Date:      testDate,
		StartTime: "11:00",
		Actor:     "reception",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidTransition))
}

func TestRescheduleConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.book("09:00")
	require.NoError(t, err)
	_, err = f.book("11:00")
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, first.ID, &model.RescheduleAppointmentRequest{
		Date:      testDate,
		StartTime: "11:15",
		Actor:     "reception",
	})
	assert.True(t, apperrors.Is(err, apperrors.ErrSlotConflict))

	// A failed reschedule leaves the original untouched.
	stored, err := f.svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusScheduled, stored.Status)
}

// TestNoOverlapInvariant hammers the day with random bookings and
// verifies no two slot-holding appointments ever overlap.
func TestNoOverlapInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		minutes := 9*60 + 5*rand.Intn(48) // 09:00..12:55 in 5-minute steps
		start := time.Date(2000, 1, 1, minutes/60, minutes%60, 0, 0, time.UTC).Format(model.ClockTime)
		_, err := f.book(start)
		if err != nil {
			code := apperrors.Code(err)
			require.Contains(t,
				[]apperrors.ErrorCode{apperrors.ErrSlotConflict, apperrors.ErrDoctorUnavailable},
				code, "unexpected booking failure: %v", err)
		}
	}

	day, err := f.svc.ListForDoctorDay(ctx, f.doctor.ID, testDate)
	require.NoError(t, err)

	var active []*model.Appointment
	for _, apt := range day {
		if apt.Status.IsActive() {
			active = append(active, apt)
		}
	}
	require.NotEmpty(t, active)

	sort.Slice(active, func(i, j int) bool {
		return active[i].StartTime.Before(active[j].StartTime)
	})
	for i := 1; i < len(active); i++ {
		assert.False(t,
			model.Overlaps(active[i-1].StartTime, active[i-1].EndTime, active[i].StartTime, active[i].EndTime),
			"appointments %s and %s overlap", active[i-1].Code, active[i].Code)
	}
}

func TestOpenWindowsQuery(t *testing.T) {
	f := newFixture(t)

	windows, err := f.svc.OpenWindows(context.Background(), f.doctor.ID, testDate)
	require.NoError(t, err)
	require.Len(t, windows, 2)

	_, err = f.svc.OpenWindows(context.Background(), f.doctor.ID, "not-a-date")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.AppointmentStatus
		want     bool
	}{
		{model.AppointmentStatusScheduled, model.AppointmentStatusConfirmed, true},
		{model.AppointmentStatusScheduled, model.AppointmentStatusCancelled, true},
		{model.AppointmentStatusScheduled, model.AppointmentStatusRescheduled, true},
		{model.AppointmentStatusScheduled, model.AppointmentStatusInProgress, false},
		{model.AppointmentStatusScheduled, model.AppointmentStatusNoShow, false},
		{model.AppointmentStatusConfirmed, model.AppointmentStatusInProgress, true},
		{model.AppointmentStatusConfirmed, model.AppointmentStatusNoShow, true},
		{model.AppointmentStatusInProgress, model.AppointmentStatusCompleted, true},
		{model.AppointmentStatusInProgress, model.AppointmentStatusCancelled, false},
		{model.AppointmentStatusCompleted, model.AppointmentStatusConfirmed, false},
		{model.AppointmentStatusCancelled, model.AppointmentStatusScheduled, false},
		{model.AppointmentStatusRescheduled, model.AppointmentStatusConfirmed, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}
