package model

import (
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DateOnly is the wire and storage format for calendar dates.
const DateOnly = "2006-01-02"

// ClockTime is the wire and storage format for times of day.
const ClockTime = "15:04"
