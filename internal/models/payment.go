package models

import "time"

// PaymentStatus represents the lifecycle of a single payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod identifies how a payment was (or will be) settled.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodUPI          PaymentMethod = "UPI"
	MethodOther        PaymentMethod = "OTHER"
)

// Payment belongs to exactly one enrollment. Rows are never deleted and the
// status column only moves along the transition graph below.
type Payment struct {
	ID            string        `db:"id" json:"id"`
	EnrollmentID  string        `db:"enrollment_id" json:"enrollment_id"`
	Amount        float64       `db:"amount" json:"amount"`
	Currency      string        `db:"currency" json:"currency"`
	Method        PaymentMethod `db:"method" json:"method"`
	Status        PaymentStatus `db:"status" json:"status"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	TransactionID *string       `db:"transaction_id" json:"transaction_id,omitempty"`
	Description   *string       `db:"description" json:"description,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentSummary is derived, never persisted: it is recomputed from the live
// payment rows on every read so it cannot drift from them.
type PaymentSummary struct {
	TotalAmount       float64 `json:"total_amount"`
	PaidAmount        float64 `json:"paid_amount"`
	PendingAmount     float64 `json:"pending_amount"`
	PaymentPercentage float64 `json:"payment_percentage"`
	Currency          string  `json:"currency"`
}

// paymentTransitions is the allowed status graph. FAILED and REFUNDED are
// terminal; a failed payment is replaced by a new row, never resurrected.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {PaymentStatusPaid, PaymentStatusFailed},
	PaymentStatusPaid:    {PaymentStatusRefunded},
}

// CanTransition reports whether a payment may move from one status to another.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}
