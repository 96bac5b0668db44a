package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
)

func (r *scheduleRepository) ListScheduleRules(ctx context.Context, doctorID uuid.UUID) ([]*model.ScheduleRule, error) {
	query := `
		SELECT id, doctor_id, day_of_week, start_time, end_time,
		       break_start, break_end, available, effective_from, effective_until
		FROM schedule_rules
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time
	`
	var rules []*model.ScheduleRule
	err := r.db.SelectContext(ctx, &rules, query, doctorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule rules: %w", err)
	}
	return rules, nil
}
