package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BillStatus string

const (
	BillStatusPending   BillStatus = "pending"
	BillStatusPartial   BillStatus = "partial"
	BillStatusPaid      BillStatus = "paid"
	BillStatusOverdue   BillStatus = "overdue"
	BillStatusCancelled BillStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodCash      PaymentMethod = "cash"
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodUPI       PaymentMethod = "upi"
	PaymentMethodInsurance PaymentMethod = "insurance"
)

// Bill reconciles the charges and payments of one visit. Charge
// components and adjustments are fixed at creation; only paid amount
// and status move afterwards, and only through the payment reconciler.
type Bill struct {
	Base
	Number             string          `json:"number" db:"number"`
	PatientID          uuid.UUID       `json:"patient_id" db:"patient_id"`
	AppointmentID      *uuid.UUID      `json:"appointment_id,omitempty" db:"appointment_id"`
	ConsultationCharge decimal.Decimal `json:"consultation_charge" db:"consultation_charge"`
	MedicineCharge     decimal.Decimal `json:"medicine_charge" db:"medicine_charge"`
	LabCharge          decimal.Decimal `json:"lab_charge" db:"lab_charge"`
	OtherCharge        decimal.Decimal `json:"other_charge" db:"other_charge"`
	DiscountPercent    decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount     decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxPercent         decimal.Decimal `json:"tax_percent" db:"tax_percent"`
	TaxAmount          decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Paid               decimal.Decimal `json:"paid" db:"paid"`
	Status             BillStatus      `json:"status" db:"status"`
	DueDate            time.Time       `json:"due_date" db:"due_date"`
}

// Subtotal is always recomputed from the four charge components,
// never stored as independently settable state.
func (b *Bill) Subtotal() decimal.Decimal {
	return b.ConsultationCharge.Add(b.MedicineCharge).Add(b.LabCharge).Add(b.OtherCharge)
}

// Total applies percentage discount and tax to the subtotal
// independently (not compounded), then the flat adjustments, rounds
// half-up to 2 decimal places and clamps at zero.
func (b *Bill) Total() decimal.Decimal {
	sub := b.Subtotal()
	hundred := decimal.NewFromInt(100)

	total := sub.
		Sub(sub.Mul(b.DiscountPercent).Div(hundred)).
		Sub(b.DiscountAmount).
		Add(sub.Mul(b.TaxPercent).Div(hundred)).
		Add(b.TaxAmount).
		Round(2)

	if total.IsNegative() {
		return decimal.Zero.Round(2)
	}
	return total
}

// Balance = total − paid, always derived.
func (b *Bill) Balance() decimal.Decimal {
	return b.Total().Sub(b.Paid)
}

// PaymentTransaction is an append-only ledger entry against one bill.
type PaymentTransaction struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	BillID    uuid.UUID       `json:"bill_id" db:"bill_id"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Method    PaymentMethod   `json:"method" db:"method"`
	Reference string          `json:"reference" db:"reference"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ChargeLine is a quantity/price line item from a clinical charge
// source (prescriptions, lab orders).
type ChargeLine struct {
	Description string          `json:"description" db:"description"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
}

// Amount returns quantity × unit price.
func (c ChargeLine) Amount() decimal.Decimal {
	return c.UnitPrice.Mul(decimal.NewFromInt(c.Quantity))
}

type GenerateBillRequest struct {
	AppointmentID   uuid.UUID       `json:"appointment_id" binding:"required"`
	OtherCharge     decimal.Decimal `json:"other_charge"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	TaxAmount       decimal.Decimal `json:"tax_amount"`
}

type ApplyPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	Method    PaymentMethod   `json:"method" binding:"required,oneof=cash card upi insurance"`
	Reference string          `json:"reference" binding:"max=255"`
}

// BillResponse augments the stored bill with its derived figures so
// clients never recompute them.
type BillResponse struct {
	*Bill
	Subtotal decimal.Decimal `json:"subtotal"`
	Total    decimal.Decimal `json:"total"`
	Balance  decimal.Decimal `json:"balance"`
}

// NewBillResponse materializes the computed accessors for transport.
func NewBillResponse(b *Bill) *BillResponse {
	return &BillResponse{
		Bill:     b,
		Subtotal: b.Subtotal(),
		Total:    b.Total(),
		Balance:  b.Balance(),
	}
}
