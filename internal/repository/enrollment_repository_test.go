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

func enrollmentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "course_id", "format", "session_count", "session_duration",
		"base_price", "discount_type", "discount_value", "discount_amount", "subtotal", "tax_rate", "tax_amount", "final_price", "currency",
		"payment_plan", "installments", "status", "schedule_note", "created_at", "updated_at",
	})
}

func TestEnrollmentRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery("SELECT id, student_id, course_id").
		WithArgs("e1").
		WillReturnRows(enrollmentRows().AddRow(
			"e1", "s1", "c1", "GROUP", 0, 0,
			1000.0, "PERCENTAGE", 10.0, 100.0, 900.0, 0.18, 162.0, 1062.0, "USD",
			"FULL", 1, "PENDING", nil, time.Now(), time.Now(),
		))

	enrollment, err := repo.FindByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, 1062.0, enrollment.FinalPrice)
	assert.Equal(t, models.EnrollmentStatusPending, enrollment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("e.student_id = $1 AND e.status = $2")).
		WithArgs("s1", models.EnrollmentStatusActive).
		WillReturnRows(enrollmentRows().AddRow(
			"e1", "s1", "c1", "GROUP", 0, 0,
			100.0, "NONE", 0.0, 0.0, 100.0, 0.0, 0.0, 100.0, "USD",
			"FULL", 1, "ACTIVE", nil, time.Now(), time.Now(),
		).AddRow(
			"e2", "s1", "c2", "ONE_TO_ONE", 0, 0,
			200.0, "NONE", 0.0, 0.0, 200.0, 0.0, 0.0, 200.0, "USD",
			"FULL", 1, "ACTIVE", nil, time.Now(), time.Now(),
		))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("s1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	list, total, err := repo.List(context.Background(), models.EnrollmentFilter{StudentID: "s1", Status: models.EnrollmentStatusActive})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateWithScheduleCommitsTogether(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	enrollment := &models.Enrollment{StudentID: "s1", CourseID: "c1", Format: models.FormatGroup, FinalPrice: 100, Currency: "USD", Status: models.EnrollmentStatusPending}
	payments := []models.Payment{
		{Amount: 50, Currency: "USD", Status: models.PaymentStatusPending, DueDate: time.Now()},
		{Amount: 50, Currency: "USD", Status: models.PaymentStatusPending, DueDate: time.Now().AddDate(0, 1, 0)},
	}

	err := repo.CreateWithSchedule(context.Background(), enrollment, payments)
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.ID)
	assert.Equal(t, enrollment.ID, payments[0].EnrollmentID)
	assert.Equal(t, enrollment.ID, payments[1].EnrollmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryCreateWithScheduleRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enrollments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO payments").WillReturnError(assertableErr{})
	mock.ExpectRollback()

	enrollment := &models.Enrollment{StudentID: "s1", CourseID: "c1", Format: models.FormatGroup}
	payments := []models.Payment{{Amount: 100, Currency: "USD", Status: models.PaymentStatusPending, DueDate: time.Now()}}

	err := repo.CreateWithSchedule(context.Background(), enrollment, payments)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type assertableErr struct{}

func (assertableErr) Error() string { return "insert failed" }

func TestEnrollmentRepositoryUpdateStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("e1", models.EnrollmentStatusActive, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "e1", models.EnrollmentStatusActive)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
