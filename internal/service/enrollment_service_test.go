package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	created     *models.Enrollment
	schedule    []models.Payment
	status      map[string]models.EnrollmentStatus
	createErr   error
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var list []models.EnrollmentDetail
	for _, e := range m.enrollments {
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e, StudentName: "Test Student"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) CreateWithSchedule(ctx context.Context, enrollment *models.Enrollment, payments []models.Payment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	m.schedule = payments
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	if m.status == nil {
		m.status = make(map[string]models.EnrollmentStatus)
	}
	m.status[id] = status
	if e, ok := m.enrollments[id]; ok {
		e.Status = status
		m.enrollments[id] = e
	}
	return nil
}

type mockStudentResolver struct {
	student  *models.Student
	err      error
	resolved int
}

func (m *mockStudentResolver) Resolve(ctx context.Context, studentID string, newStudent *NewStudentInput) (*models.Student, error) {
	m.resolved++
	if m.err != nil {
		return nil, m.err
	}
	return m.student, nil
}

type mockPriceResolver struct {
	price float64
	err   error
}

func (m *mockPriceResolver) BasePriceFor(ctx context.Context, courseID string, format models.CourseFormat) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.price, nil
}

type mockSettingsProvider struct {
	settings models.InstitutionSettings
}

func (m *mockSettingsProvider) Current(ctx context.Context) (models.InstitutionSettings, error) {
	return m.settings, nil
}

func newTestEnrollmentService(repo *mockEnrollmentRepo, students *mockStudentResolver, prices *mockPriceResolver, settings *mockSettingsProvider, policy EnrollmentPolicy) *EnrollmentService {
	return NewEnrollmentService(repo, students, prices, settings, nil, nil, nil, nil, policy)
}

func TestCreateEnrollmentSnapshotsPricing(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 1000}
	settings := &mockSettingsProvider{settings: models.InstitutionSettings{TaxRate: 0.18, Currency: "USD"}}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	result, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:   "stu-1",
		CourseID:    "course-1",
		Format:      models.FormatOneToOne,
		Discount:    Discount{Type: models.DiscountPercentage, Value: 10},
		PaymentPlan: PaymentPlanInput{Type: models.PlanFull},
	})
	require.NoError(t, err)
	require.NotNil(t, repo.created)

	assert.Equal(t, 1000.0, repo.created.BasePrice)
	assert.Equal(t, 100.0, repo.created.DiscountAmount)
	assert.Equal(t, 900.0, repo.created.Subtotal)
	assert.Equal(t, 0.18, repo.created.TaxRate)
	assert.Equal(t, 162.0, repo.created.TaxAmount)
	assert.Equal(t, 1062.0, repo.created.FinalPrice)
	assert.Equal(t, "USD", repo.created.Currency)
	assert.Equal(t, models.EnrollmentStatusPending, repo.created.Status)

	require.Len(t, result.Payments, 1)
	assert.Equal(t, 1062.0, result.Payments[0].Amount)
	assert.Equal(t, models.PaymentStatusPending, result.Payments[0].Status)
	assert.Equal(t, "Full payment", *result.Payments[0].Description)
}

func TestCreateEnrollmentInstallmentScheduleSumsExactly(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 100}
	settings := &mockSettingsProvider{settings: models.InstitutionSettings{Currency: "EUR"}}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	result, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:   "stu-1",
		CourseID:    "course-1",
		Format:      models.FormatGroup,
		PaymentPlan: PaymentPlanInput{Type: models.PlanInstallments, Installments: 3},
	})
	require.NoError(t, err)
	require.Len(t, result.Payments, 3)

	assert.Equal(t, 33.33, result.Payments[0].Amount)
	assert.Equal(t, 33.33, result.Payments[1].Amount)
	assert.Equal(t, 33.34, result.Payments[2].Amount)

	// Due dates are spread monthly from the first.
	first := result.Payments[0].DueDate
	assert.Equal(t, first.AddDate(0, 1, 0), result.Payments[1].DueDate)
	assert.Equal(t, first.AddDate(0, 2, 0), result.Payments[2].DueDate)
	assert.Equal(t, "Installment 2 of 3", *result.Payments[1].Description)
}

func TestCreateEnrollmentFirstPaymentMarkedPaid(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 300}
	settings := &mockSettingsProvider{settings: models.InstitutionSettings{Currency: "USD"}}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	txID := "txn-42"
	result, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:    "stu-1",
		CourseID:     "course-1",
		Format:       models.FormatGroup,
		PaymentPlan:  PaymentPlanInput{Type: models.PlanInstallments, Installments: 3},
		FirstPayment: &FirstPaymentInput{Method: models.MethodCard, MarkPaid: true, TransactionID: &txID},
	})
	require.NoError(t, err)
	require.Len(t, result.Payments, 3)

	assert.Equal(t, models.PaymentStatusPaid, result.Payments[0].Status)
	require.NotNil(t, result.Payments[0].PaidAt)
	assert.Equal(t, &txID, result.Payments[0].TransactionID)
	assert.Equal(t, models.MethodCard, result.Payments[0].Method)
	assert.Equal(t, models.PaymentStatusPending, result.Payments[1].Status)

	assert.Equal(t, 100.0, result.Summary.PaidAmount)
	assert.Equal(t, 200.0, result.Summary.PendingAmount)
}

func TestCreateEnrollmentInjectedInitialStatus(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 100}
	settings := &mockSettingsProvider{}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{InitialStatus: models.EnrollmentStatusActive})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:   "stu-1",
		CourseID:    "course-1",
		Format:      models.FormatGroup,
		PaymentPlan: PaymentPlanInput{Type: models.PlanFull},
	})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, repo.created.Status)
}

func TestCreateEnrollmentDuplicateEmailStopsWorkflow(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{err: appErrors.WithDetails(appErrors.ErrDuplicateEmail, map[string]string{
		"email":               "jane@example.com",
		"existing_student_id": "stu-7",
	})}
	prices := &mockPriceResolver{price: 100}
	settings := &mockSettingsProvider{}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		NewStudent:  &NewStudentInput{Email: "jane@example.com", FullName: "Jane"},
		CourseID:    "course-1",
		Format:      models.FormatGroup,
		PaymentPlan: PaymentPlanInput{Type: models.PlanFull},
	})
	require.Error(t, err)

	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDuplicateEmail.Code, appErr.Code)
	assert.Equal(t, "stu-7", appErr.Details["existing_student_id"])
	assert.Nil(t, repo.created, "no enrollment may be created when the student step fails")
}

func TestCreateEnrollmentNoPricingConfigured(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{err: appErrors.Clone(appErrors.ErrNoPricingConfigured, "")}
	settings := &mockSettingsProvider{}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:   "stu-1",
		CourseID:    "course-1",
		Format:      models.FormatGroup,
		PaymentPlan: PaymentPlanInput{Type: models.PlanFull},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoPricingConfigured.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestCreateEnrollmentInstallmentBounds(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 100}
	settings := &mockSettingsProvider{}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{MaxInstallments: 6})

	for _, n := range []int{1, 7} {
		_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
			StudentID:   "stu-1",
			CourseID:    "course-1",
			Format:      models.FormatGroup,
			PaymentPlan: PaymentPlanInput{Type: models.PlanInstallments, Installments: n},
		})
		assert.Error(t, err, "installments=%d", n)
	}
	assert.Zero(t, students.resolved, "validation failures must not touch the student step")
}

func TestUpdateEnrollmentStatusTransitions(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", Status: models.EnrollmentStatusPending},
		"e2": {ID: "e2", Status: models.EnrollmentStatusCompleted},
	}}
	svc := newTestEnrollmentService(repo, &mockStudentResolver{}, &mockPriceResolver{}, &mockSettingsProvider{}, EnrollmentPolicy{})

	detail, err := svc.UpdateStatus(context.Background(), "e1", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusActive})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)

	// COMPLETED is terminal.
	_, err = svc.UpdateStatus(context.Background(), "e2", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusCancelled})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateStatus(context.Background(), "missing", UpdateEnrollmentStatusRequest{Status: models.EnrollmentStatusActive})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCreateEnrollmentPersistFailureLeavesStudent(t *testing.T) {
	repo := &mockEnrollmentRepo{createErr: sql.ErrConnDone}
	students := &mockStudentResolver{student: &models.Student{ID: "stu-1"}}
	prices := &mockPriceResolver{price: 100}
	settings := &mockSettingsProvider{}
	svc := newTestEnrollmentService(repo, students, prices, settings, EnrollmentPolicy{})

	_, err := svc.Create(context.Background(), CreateEnrollmentRequest{
		StudentID:   "stu-1",
		CourseID:    "course-1",
		Format:      models.FormatGroup,
		PaymentPlan: PaymentPlanInput{Type: models.PlanFull},
	})
	require.Error(t, err)
	assert.Equal(t, 1, students.resolved)
}

func TestBuildScheduleDueDatesStartNow(t *testing.T) {
	svc := newTestEnrollmentService(&mockEnrollmentRepo{}, &mockStudentResolver{}, &mockPriceResolver{}, &mockSettingsProvider{}, EnrollmentPolicy{})
	enrollment := &models.Enrollment{FinalPrice: 600, Currency: "USD"}

	payments, err := svc.buildSchedule(enrollment, 2, nil)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	assert.WithinDuration(t, time.Now().UTC(), payments[0].DueDate, 5*time.Second)
	assert.Equal(t, models.MethodOther, payments[0].Method)
}
