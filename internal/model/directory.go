package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Doctor is a read-only snapshot from the directory collaborator.
// The core never mutates directory records.
type Doctor struct {
	ID                          uuid.UUID       `json:"id" db:"id"`
	Name                        string          `json:"name" db:"name"`
	Specialization              string          `json:"specialization" db:"specialization"`
	ConsultationDurationMinutes int             `json:"consultation_duration_minutes" db:"consultation_duration_minutes"`
	ConsultationFee             decimal.Decimal `json:"consultation_fee" db:"consultation_fee"`
	Available                   bool            `json:"available" db:"available"`
}

// ConsultationDuration returns the configured slot length.
func (d *Doctor) ConsultationDuration() time.Duration {
	return time.Duration(d.ConsultationDurationMinutes) * time.Minute
}

// Patient is a read-only snapshot from the directory collaborator.
type Patient struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"name"`
	Email string    `json:"email" db:"email"`
	Phone string    `json:"phone" db:"phone"`
}
