package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicore/clinic-api/internal/model"
)

func (r *chargeRepository) ListPrescriptionCharges(ctx context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error) {
	query := `
		SELECT m.name AS description, pi.quantity, m.unit_price
		FROM prescription_items pi
		JOIN medicines m ON m.id = pi.medicine_id
		JOIN prescriptions p ON p.id = pi.prescription_id
		WHERE p.appointment_id = $1
	`
	var lines []model.ChargeLine
	err := r.db.SelectContext(ctx, &lines, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prescription charges: %w", err)
	}
	return lines, nil
}

func (r *chargeRepository) ListLabCharges(ctx context.Context, appointmentID uuid.UUID) ([]model.ChargeLine, error) {
	query := `
		SELECT t.name AS description, 1 AS quantity, t.price AS unit_price
		FROM lab_orders o
		JOIN lab_tests t ON t.id = o.test_id
		WHERE o.appointment_id = $1
	`
	var lines []model.ChargeLine
	err := r.db.SelectContext(ctx, &lines, query, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lab charges: %w", err)
	}
	return lines, nil
}
