package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ScheduleRule is a recurring weekly availability rule for one doctor.
// Times of day are stored as "HH:MM" in the clinic's local time zone.
type ScheduleRule struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	DoctorID       uuid.UUID    `json:"doctor_id" db:"doctor_id"`
	DayOfWeek      time.Weekday `json:"day_of_week" db:"day_of_week"`
	StartTime      string       `json:"start_time" db:"start_time"`
	EndTime        string       `json:"end_time" db:"end_time"`
	BreakStart     *string      `json:"break_start,omitempty" db:"break_start"`
	BreakEnd       *string      `json:"break_end,omitempty" db:"break_end"`
	Available      bool         `json:"available" db:"available"`
	EffectiveFrom  time.Time    `json:"effective_from" db:"effective_from"`
	EffectiveUntil *time.Time   `json:"effective_until,omitempty" db:"effective_until"`
}

// Validate checks the structural invariants: end after start, break
// bounds paired and fully inside the working window.
func (r *ScheduleRule) Validate() error {
	start, err := ParseClockTime(r.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", r.StartTime, err)
	}
	end, err := ParseClockTime(r.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", r.EndTime, err)
	}
	if end <= start {
		return fmt.Errorf("end time %s must be after start time %s", r.EndTime, r.StartTime)
	}

	if (r.BreakStart == nil) != (r.BreakEnd == nil) {
		return fmt.Errorf("break start and break end must both be set or both be empty")
	}
	if r.BreakStart != nil {
		bs, err := ParseClockTime(*r.BreakStart)
		if err != nil {
			return fmt.Errorf("invalid break start %q: %w", *r.BreakStart, err)
		}
		be, err := ParseClockTime(*r.BreakEnd)
		if err != nil {
			return fmt.Errorf("invalid break end %q: %w", *r.BreakEnd, err)
		}
		if !(start <= bs && bs < be && be <= end) {
			return fmt.Errorf("break %s-%s must lie inside working hours %s-%s",
				*r.BreakStart, *r.BreakEnd, r.StartTime, r.EndTime)
		}
	}
	return nil
}

// Covers reports whether the rule's effective date range includes
// date. Each value is read as a calendar day in its own location, so a
// clinic-local date matches the DATE-valued bounds regardless of the
// clinic's offset from UTC.
func (r *ScheduleRule) Covers(date time.Time) bool {
	day := calendarDay(date)
	if day < calendarDay(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveUntil != nil && day > calendarDay(*r.EffectiveUntil) {
		return false
	}
	return true
}

func calendarDay(t time.Time) int {
	year, month, day := t.Date()
	return year*10000 + int(month)*100 + day
}

// TimeWindow is a contiguous open interval during which a doctor
// accepts appointments, after break exclusion. Half-open [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the candidate interval lies fully inside
// the window.
func (w TimeWindow) Contains(start, end time.Time) bool {
	return !start.Before(w.Start) && !end.After(w.End)
}

// ParseClockTime converts "HH:MM" to minutes from midnight.
func ParseClockTime(s string) (int, error) {
	t, err := time.Parse(ClockTime, s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ClockTimeAt anchors minutes-from-midnight onto a calendar date in
// the given location.
func ClockTimeAt(date time.Time, minutes int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, loc)
}
