package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusInProgress  AppointmentStatus = "in_progress"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
)

// ActiveStatuses are the statuses that count toward conflict
// detection. Cancelled, no-show and rescheduled-away appointments
// release their slot.
var ActiveStatuses = []AppointmentStatus{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusInProgress,
	AppointmentStatusCompleted,
}

// IsActive reports whether the status holds its time slot.
func (s AppointmentStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type AppointmentType string

const (
	AppointmentTypeRegular   AppointmentType = "regular"
	AppointmentTypeFollowUp  AppointmentType = "follow_up"
	AppointmentTypeEmergency AppointmentType = "emergency"
)

type AppointmentPriority string

const (
	AppointmentPriorityNormal AppointmentPriority = "normal"
	AppointmentPriorityUrgent AppointmentPriority = "urgent"
)

type Appointment struct {
	Base
	Code            string              `json:"code" db:"code"`
	PatientID       uuid.UUID           `json:"patient_id" db:"patient_id"`
	DoctorID        uuid.UUID           `json:"doctor_id" db:"doctor_id"`
	Date            time.Time           `json:"date" db:"date"`
	StartTime       time.Time           `json:"start_time" db:"start_time"`
	EndTime         time.Time           `json:"end_time" db:"end_time"`
	Type            AppointmentType     `json:"type" db:"type"`
	Priority        AppointmentPriority `json:"priority" db:"priority"`
	Status          AppointmentStatus   `json:"status" db:"status"`
	Reason          string              `json:"reason" db:"reason"`
	CancelReason    *string             `json:"cancel_reason,omitempty" db:"cancel_reason"`
	CancelledBy     *string             `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	RescheduledFrom *uuid.UUID          `json:"rescheduled_from,omitempty" db:"rescheduled_from"`
}

// Overlaps reports whether two half-open intervals conflict. Touching
// endpoints do not conflict.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

type BookAppointmentRequest struct {
	PatientID uuid.UUID           `json:"patient_id" binding:"required"`
	DoctorID  uuid.UUID           `json:"doctor_id" binding:"required"`
	Date      string              `json:"date" binding:"required,datetime=2006-01-02"`
	StartTime string              `json:"start_time" binding:"required,datetime=15:04"`
	Type      AppointmentType     `json:"type" binding:"required,oneof=regular follow_up emergency"`
	Priority  AppointmentPriority `json:"priority" binding:"omitempty,oneof=normal urgent"`
	Reason    string              `json:"reason" binding:"max=1000"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"required,max=1000"`
	Actor  string `json:"actor" binding:"required"`
}

type RescheduleAppointmentRequest struct {
	Date      string `json:"date" binding:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" binding:"required,datetime=15:04"`
	Actor     string `json:"actor" binding:"required"`
}

type TransitionRequest struct {
	Actor string `json:"actor" binding:"required"`
}
