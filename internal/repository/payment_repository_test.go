package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-billing-api/internal/models"
)

func paymentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "enrollment_id", "amount", "currency", "method", "status", "due_date", "paid_at", "transaction_id", "description", "created_at", "updated_at"})
}

func TestPaymentRepositoryListByEnrollment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE enrollment_id = $1 ORDER BY due_date, created_at")).
		WithArgs("e1").
		WillReturnRows(paymentRows().
			AddRow("p1", "e1", 33.33, "USD", "CARD", "PAID", time.Now(), time.Now(), "txn-1", "Installment 1 of 3", time.Now(), time.Now()).
			AddRow("p2", "e1", 33.33, "USD", "CARD", "PENDING", time.Now(), nil, nil, "Installment 2 of 3", time.Now(), time.Now()))

	payments, err := repo.ListByEnrollment(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, models.PaymentStatusPaid, payments[0].Status)
	assert.Nil(t, payments[1].PaidAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))

	payment := &models.Payment{EnrollmentID: "e1", Amount: 100, Currency: "USD", Method: models.MethodCash, Status: models.PaymentStatusPending, DueDate: time.Now()}
	err := repo.Create(context.Background(), payment)
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateStatusPreservesPaidAt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	// paid_at and transaction_id are guarded by COALESCE so an already-set
	// value survives later transitions.
	mock.ExpectExec(regexp.QuoteMeta("paid_at = COALESCE(paid_at, $3)")).
		WithArgs("p1", models.PaymentStatusRefunded, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "p1", models.PaymentStatusRefunded, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryUpdateStatusMarkPaid(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewPaymentRepository(db)

	paidAt := time.Now().UTC()
	txn := "txn-9"
	mock.ExpectExec("UPDATE payments SET status").
		WithArgs("p1", models.PaymentStatusPaid, &paidAt, &txn, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "p1", models.PaymentStatusPaid, &paidAt, &txn)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
