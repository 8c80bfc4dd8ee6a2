package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	CreateWithSchedule(ctx context.Context, enrollment *models.Enrollment, payments []models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type studentResolver interface {
	Resolve(ctx context.Context, studentID string, newStudent *NewStudentInput) (*models.Student, error)
}

type basePriceResolver interface {
	BasePriceFor(ctx context.Context, courseID string, format models.CourseFormat) (float64, error)
}

type settingsProvider interface {
	Current(ctx context.Context) (models.InstitutionSettings, error)
}

// PaymentPlanInput describes how the final price is split.
type PaymentPlanInput struct {
	Type         models.PaymentPlan `json:"type" validate:"required,oneof=FULL INSTALLMENTS"`
	Installments int                `json:"installments"`
}

// FirstPaymentInput optionally records the first payment at creation time.
type FirstPaymentInput struct {
	Method        models.PaymentMethod `json:"method" validate:"required"`
	MarkPaid      bool                 `json:"mark_paid"`
	TransactionID *string              `json:"transaction_id,omitempty"`
}

// CreateEnrollmentRequest is the full enrollment creation payload.
type CreateEnrollmentRequest struct {
	StudentID       string              `json:"student_id"`
	NewStudent      *NewStudentInput    `json:"new_student,omitempty"`
	CourseID        string              `json:"course_id" validate:"required"`
	Format          models.CourseFormat `json:"format" validate:"required"`
	SessionCount    int                 `json:"session_count" validate:"omitempty,min=1"`
	SessionDuration int                 `json:"session_duration" validate:"omitempty,min=1"`
	Discount        Discount            `json:"discount"`
	PaymentPlan     PaymentPlanInput    `json:"payment_plan"`
	FirstPayment    *FirstPaymentInput  `json:"first_payment,omitempty"`
	ScheduleNote    *string             `json:"schedule_note,omitempty"`
}

// CreateEnrollmentResult is returned to the caller after a successful run.
type CreateEnrollmentResult struct {
	Enrollment *models.EnrollmentDetail `json:"enrollment"`
	Payments   []models.Payment         `json:"payments"`
	Summary    models.PaymentSummary    `json:"summary"`
}

// UpdateEnrollmentStatusRequest asks for a lifecycle transition.
type UpdateEnrollmentStatusRequest struct {
	Status models.EnrollmentStatus `json:"status" validate:"required,oneof=ACTIVE COMPLETED CANCELLED SUSPENDED"`
}

// EnrollmentService sequences the enrollment creation workflow: resolve the
// student, resolve the course price, snapshot settings, compute the
// breakdown, persist the enrollment together with its payment schedule, and
// optionally record the first payment as already paid. Each step runs
// synchronously within the request; a student created in step one persists
// even if a later step fails and is reused on retry via email resolution.
type EnrollmentService struct {
	repo      enrollmentRepository
	students  studentResolver
	pricing   basePriceResolver
	settings  settingsProvider
	notifier  Notifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger

	initialStatus   models.EnrollmentStatus
	discountPolicy  DiscountPolicy
	maxInstallments int
}

// EnrollmentPolicy carries injected business policy; nothing here is
// hard-coded in the workflow itself.
type EnrollmentPolicy struct {
	InitialStatus   models.EnrollmentStatus
	DiscountPolicy  DiscountPolicy
	MaxInstallments int
}

// NewEnrollmentService constructs the orchestrator.
func NewEnrollmentService(repo enrollmentRepository, students studentResolver, pricing basePriceResolver, settings settingsProvider, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, policy EnrollmentPolicy) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if policy.InitialStatus != models.EnrollmentStatusActive {
		policy.InitialStatus = models.EnrollmentStatusPending
	}
	if policy.DiscountPolicy != DiscountPolicyReject {
		policy.DiscountPolicy = DiscountPolicyClamp
	}
	if policy.MaxInstallments < 2 {
		policy.MaxInstallments = 12
	}
	return &EnrollmentService{
		repo:            repo,
		students:        students,
		pricing:         pricing,
		settings:        settings,
		notifier:        notifier,
		metrics:         metrics,
		validator:       validate,
		logger:          logger,
		initialStatus:   policy.InitialStatus,
		discountPolicy:  policy.DiscountPolicy,
		maxInstallments: policy.MaxInstallments,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Get returns a single enrollment with student and course context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// Create runs the enrollment creation workflow end to end.
func (s *EnrollmentService) Create(ctx context.Context, req CreateEnrollmentRequest) (*CreateEnrollmentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	installments, err := s.resolveInstallments(req.PaymentPlan)
	if err != nil {
		return nil, err
	}

	// Step 1: resolve or create the student. This write intentionally sits
	// outside the enrollment transaction: an abandoned flow leaves a
	// reusable student, not a corrupted financial record.
	student, err := s.students.Resolve(ctx, req.StudentID, req.NewStudent)
	if err != nil {
		return nil, err
	}

	// Step 2: resolve the base price for the chosen format.
	basePrice, err := s.pricing.BasePriceFor(ctx, req.CourseID, req.Format)
	if err != nil {
		return nil, err
	}

	// Step 3: snapshot tax rate and currency as of now; the enrollment
	// keeps these values even when settings change later.
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	breakdown, err := ComputeBreakdown(basePrice, req.Discount, settings.TaxRate, s.discountPolicy)
	if err != nil {
		return nil, err
	}

	discountType := req.Discount.Type
	if discountType == "" {
		discountType = models.DiscountNone
	}

	enrollment := &models.Enrollment{
		StudentID:       student.ID,
		CourseID:        req.CourseID,
		Format:          req.Format,
		SessionCount:    req.SessionCount,
		SessionDuration: req.SessionDuration,
		BasePrice:       Round2(breakdown.BasePrice),
		DiscountType:    discountType,
		DiscountValue:   req.Discount.Value,
		DiscountAmount:  Round2(breakdown.DiscountAmount),
		Subtotal:        Round2(breakdown.Subtotal),
		TaxRate:         breakdown.TaxRate,
		TaxAmount:       Round2(breakdown.TaxAmount),
		FinalPrice:      Round2(breakdown.FinalPrice),
		Currency:        settings.Currency,
		PaymentPlan:     req.PaymentPlan.Type,
		Installments:    installments,
		Status:          s.initialStatus,
		Schedule:        req.ScheduleNote,
	}

	// Steps 4-5: the enrollment row and its payment schedule are persisted
	// in one transaction.
	payments, err := s.buildSchedule(enrollment, installments, req.FirstPayment)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateWithSchedule(ctx, enrollment, payments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollmentCreated()
		for _, p := range payments {
			s.metrics.RecordPayment(string(p.Status))
		}
	}
	s.notifier.EnrollmentCreated(ctx, detail)
	s.logger.Info("enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", student.ID),
		zap.Float64("final_price", enrollment.FinalPrice),
		zap.Int("installments", installments),
	)

	return &CreateEnrollmentResult{
		Enrollment: detail,
		Payments:   payments,
		Summary:    buildPaymentSummary(enrollment.FinalPrice, enrollment.Currency, payments),
	}, nil
}

// UpdateStatus transitions the enrollment lifecycle. Pricing snapshot
// columns are never touched; enrollments are cancelled, not deleted.
func (s *EnrollmentService) UpdateStatus(ctx context.Context, id string, req UpdateEnrollmentStatusRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if !enrollment.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move enrollment from %s to %s", enrollment.Status, req.Status))
	}
	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

func (s *EnrollmentService) resolveInstallments(plan PaymentPlanInput) (int, error) {
	switch plan.Type {
	case models.PlanFull:
		return 1, nil
	case models.PlanInstallments:
		if plan.Installments < 2 || plan.Installments > s.maxInstallments {
			return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("installments must be between 2 and %d", s.maxInstallments))
		}
		return plan.Installments, nil
	default:
		return 0, appErrors.Clone(appErrors.ErrValidation, "payment plan must be FULL or INSTALLMENTS")
	}
}

// buildSchedule materializes the payment rows for the plan. Step 6: when the
// caller marks the first payment as paid it is created directly in PAID with
// paid_at set, not created PENDING and transitioned afterwards.
func (s *EnrollmentService) buildSchedule(enrollment *models.Enrollment, installments int, first *FirstPaymentInput) ([]models.Payment, error) {
	amounts, err := SplitInstallments(enrollment.FinalPrice, installments)
	if err != nil {
		return nil, err
	}

	method := models.MethodOther
	if first != nil && first.Method != "" {
		method = first.Method
	}

	now := time.Now().UTC()
	payments := make([]models.Payment, len(amounts))
	for i, amount := range amounts {
		desc := fmt.Sprintf("Installment %d of %d", i+1, len(amounts))
		if len(amounts) == 1 {
			desc = "Full payment"
		}
		payments[i] = models.Payment{
			Amount:      amount,
			Currency:    enrollment.Currency,
			Method:      method,
			Status:      models.PaymentStatusPending,
			DueDate:     now.AddDate(0, i, 0),
			Description: &desc,
		}
	}

	if first != nil && first.MarkPaid {
		paidAt := now
		payments[0].Status = models.PaymentStatusPaid
		payments[0].PaidAt = &paidAt
		payments[0].TransactionID = first.TransactionID
	}
	return payments, nil
}
