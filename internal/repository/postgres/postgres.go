package postgres

import (
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
)

type directoryRepository struct {
	db *sqlx.DB
}

type scheduleRepository struct {
	db *sqlx.DB
}

type appointmentRepository struct {
	BaseRepository
}

type chargeRepository struct {
	db *sqlx.DB
}

type billRepository struct {
	BaseRepository
}

func NewDirectoryRepository(db *sqlx.DB) repository.DirectoryRepository {
	return &directoryRepository{db: db}
}

func NewScheduleRepository(db *sqlx.DB) repository.ScheduleRepository {
	return &scheduleRepository{db: db}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: NewBaseRepository(db)}
}

func NewChargeRepository(db *sqlx.DB) repository.ChargeRepository {
	return &chargeRepository{db: db}
}

func NewBillRepository(db *sqlx.DB) repository.BillRepository {
	return &billRepository{BaseRepository: NewBaseRepository(db)}
}

// sqlDate renders a calendar day for DATE-typed columns and
// parameters. Sending the day as text keeps the comparison independent
// of the server's session timezone; a midnight-local time.Time east of
// UTC would otherwise cast to the previous day.
func sqlDate(t time.Time) string {
	return t.Format(model.DateOnly)
}

// isUniqueViolation reports whether err is a postgres unique
// constraint violation on the named constraint.
func isUniqueViolation(err error, constraint string) bool {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return false
	}
	return pqErr.Code == "23505" && pqErr.Constraint == constraint
}
