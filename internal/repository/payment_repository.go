package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-billing-api/internal/models"
)

const paymentColumns = `id, enrollment_id, amount, currency, method, status, due_date, paid_at, transaction_id, description, created_at, updated_at`

const insertPaymentQuery = `INSERT INTO payments (id, enrollment_id, amount, currency, method, status, due_date, paid_at, transaction_id, description, created_at, updated_at)
        VALUES (:id, :enrollment_id, :amount, :currency, :method, :status, :due_date, :paid_at, :transaction_id, :description, :created_at, :updated_at)`

// PaymentRepository handles persistence of payment rows. Rows are inserted
// and status-transitioned, never deleted.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListByEnrollment returns all payments for an enrollment ordered by due date.
func (r *PaymentRepository) ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE enrollment_id = $1 ORDER BY due_date, created_at", paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// FindByID returns a payment by its ID.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// Create inserts a single ad-hoc payment row.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	if _, err := r.db.NamedExecContext(ctx, insertPaymentQuery, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// UpdateStatus applies a status transition. paid_at and transaction_id are
// written only when the transition sets them; they are never overwritten by
// later transitions.
func (r *PaymentRepository) UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paidAt *time.Time, transactionID *string) error {
	const query = `UPDATE payments SET status = $2,
        paid_at = COALESCE(paid_at, $3),
        transaction_id = COALESCE(transaction_id, $4),
        updated_at = $5
        WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, paidAt, transactionID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}
