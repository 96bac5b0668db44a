package schedule

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
)

// Service resolves a doctor's recurring weekly availability rules
// into concrete open windows for a calendar day.
type Service struct {
	repo repository.ScheduleRepository
	loc  *time.Location
}

func NewService(repo repository.ScheduleRepository, loc *time.Location) *Service {
	return &Service{repo: repo, loc: loc}
}

// OpenWindows returns the ordered open intervals for the doctor on
// date, with any configured break excluded. An empty result means the
// doctor is unavailable that day; it is not an error.
func (s *Service) OpenWindows(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]model.TimeWindow, error) {
	rules, err := s.repo.ListScheduleRules(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule rules: %w", err)
	}

	var windows []model.TimeWindow
	for _, rule := range rules {
		if rule.DayOfWeek != date.Weekday() || !rule.Available || !rule.Covers(date) {
			continue
		}
		if err := rule.Validate(); err != nil {
			return nil, apperrors.Validation("malformed schedule rule", err)
		}

		start, _ := model.ParseClockTime(rule.StartTime)
		end, _ := model.ParseClockTime(rule.EndTime)

		if rule.BreakStart == nil {
			windows = append(windows, s.window(date, start, end))
			continue
		}

		breakStart, _ := model.ParseClockTime(*rule.BreakStart)
		breakEnd, _ := model.ParseClockTime(*rule.BreakEnd)

		if breakStart > start {
			windows = append(windows, s.window(date, start, breakStart))
		}
		if end > breakEnd {
			windows = append(windows, s.window(date, breakEnd, end))
		}
	}

	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Start.Before(windows[j].Start)
	})
	return windows, nil
}

func (s *Service) window(date time.Time, startMinutes, endMinutes int) model.TimeWindow {
	return model.TimeWindow{
		Start: model.ClockTimeAt(date, startMinutes, s.loc),
		End:   model.ClockTimeAt(date, endMinutes, s.loc),
	}
}
