package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/clinicore/clinic-api/internal/model"
	"github.com/clinicore/clinic-api/internal/repository"
	apperrors "github.com/clinicore/clinic-api/pkg/errors"
)

const billColumns = `
	id, number, patient_id, appointment_id, consultation_charge,
	medicine_charge, lab_charge, other_charge, discount_percent,
	discount_amount, tax_percent, tax_amount, paid, status, due_date,
	created_at, updated_at
`

func (r *billRepository) Create(ctx context.Context, bill *model.Bill) error {
	now := time.Now()
	bill.CreatedAt = now
	bill.UpdatedAt = now

	query := `
		INSERT INTO bills (` + billColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.ExecContext(ctx, query,
		bill.ID, bill.Number, bill.PatientID, bill.AppointmentID,
		bill.ConsultationCharge, bill.MedicineCharge, bill.LabCharge,
		bill.OtherCharge, bill.DiscountPercent, bill.DiscountAmount,
		bill.TaxPercent, bill.TaxAmount, bill.Paid, bill.Status,
		sqlDate(bill.DueDate), bill.CreatedAt, bill.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "bills_number_key") {
			return repository.ErrDuplicateIdentifier
		}
		if isUniqueViolation(err, "bills_appointment_id_key") {
			return apperrors.Validation("a bill already exists for this appointment", err)
		}
		return fmt.Errorf("failed to create bill: %w", err)
	}
	return nil
}

func (r *billRepository) Get(ctx context.Context, id uuid.UUID) (*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE id = $1`

	var bill model.Bill
	err := r.db.GetContext(ctx, &bill, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("bill", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &bill, nil
}

func (r *billRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Bill, error) {
	query := `SELECT ` + billColumns + ` FROM bills WHERE appointment_id = $1`

	var bill model.Bill
	err := r.db.GetContext(ctx, &bill, query, appointmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("bill", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &bill, nil
}

// AddPayment appends the ledger entry and persists the recomputed
// paid amount and status in one transaction, so a failure rolls back
// both writes.
func (r *billRepository) AddPayment(ctx context.Context, bill *model.Bill, txn *model.PaymentTransaction) error {
	bill.UpdatedAt = time.Now()

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payment_transactions (id, bill_id, amount, method, reference, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, txn.ID, txn.BillID, txn.Amount, txn.Method, txn.Reference, txn.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bills SET paid = $1, status = $2, updated_at = $3 WHERE id = $4
		`, bill.Paid, bill.Status, bill.UpdatedAt, bill.ID)
		if err != nil {
			return fmt.Errorf("failed to update bill: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return apperrors.NotFound("bill", nil)
		}
		return nil
	})
}

func (r *billRepository) ListPayments(ctx context.Context, billID uuid.UUID) ([]*model.PaymentTransaction, error) {
	query := `
		SELECT id, bill_id, amount, method, reference, created_at
		FROM payment_transactions
		WHERE bill_id = $1
		ORDER BY created_at ASC
	`
	var payments []*model.PaymentTransaction
	err := r.db.SelectContext(ctx, &payments, query, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

func (r *billRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	query := `
		UPDATE bills
		SET status = $1, updated_at = $2
		WHERE status IN ($3, $4) AND due_date < $5
	`
	res, err := r.db.ExecContext(ctx, query,
		model.BillStatusOverdue, time.Now(),
		model.BillStatusPending, model.BillStatusPartial, sqlDate(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark overdue bills: %w", err)
	}
	return res.RowsAffected()
}
