package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
	"github.com/noah-isme/edu-billing-api/pkg/currency"
	"github.com/noah-isme/edu-billing-api/pkg/export"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type paymentRepository interface {
	ListByEnrollment(ctx context.Context, enrollmentID string) ([]models.Payment, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus, paidAt *time.Time, transactionID *string) error
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

// AddPaymentRequest records an ad-hoc payment against an enrollment.
type AddPaymentRequest struct {
	Amount        float64              `json:"amount" validate:"required,gt=0"`
	Method        models.PaymentMethod `json:"method" validate:"required"`
	DueDate       time.Time            `json:"due_date"`
	Status        models.PaymentStatus `json:"status" validate:"omitempty,oneof=PENDING PAID"`
	Description   *string              `json:"description,omitempty"`
	TransactionID *string              `json:"transaction_id,omitempty"`
}

// TransitionPaymentRequest asks for a payment status change.
type TransitionPaymentRequest struct {
	Status        models.PaymentStatus `json:"status" validate:"required,oneof=PAID FAILED REFUNDED"`
	TransactionID *string              `json:"transaction_id,omitempty"`
}

// PaymentListResult pairs the payment rows with their derived summary.
type PaymentListResult struct {
	Payments []models.Payment      `json:"payments"`
	Summary  models.PaymentSummary `json:"summary"`
}

// PaymentService owns the payment ledger for enrollments: row creation,
// status transitions along the allowed graph, and always-recomputed
// aggregate summaries.
type PaymentService struct {
	repo        paymentRepository
	enrollments enrollmentReader
	notifier    Notifier
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
}

// NewPaymentService constructs the ledger service.
func NewPaymentService(repo paymentRepository, enrollments enrollmentReader, notifier Notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		notifier:    notifier,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
	}
}

// Add records an ad-hoc payment. Initial status is PENDING unless the
// operator explicitly creates it as already paid.
func (s *PaymentService) Add(ctx context.Context, enrollmentID string, req AddPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	if enrollment.Status == models.EnrollmentStatusCancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is cancelled")
	}

	status := req.Status
	if status == "" {
		status = models.PaymentStatusPending
	}
	dueDate := req.DueDate
	if dueDate.IsZero() {
		dueDate = time.Now().UTC()
	}

	payment := &models.Payment{
		EnrollmentID:  enrollmentID,
		Amount:        Round2(req.Amount),
		Currency:      enrollment.Currency,
		Method:        req.Method,
		Status:        status,
		DueDate:       dueDate,
		Description:   req.Description,
		TransactionID: req.TransactionID,
	}
	if status == models.PaymentStatusPaid {
		paidAt := time.Now().UTC()
		payment.PaidAt = &paidAt
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(string(payment.Status))
	}
	if payment.Status == models.PaymentStatusPaid {
		s.notifier.PaymentReceived(ctx, payment)
	}
	return payment, nil
}

// Transition applies a status change along the allowed graph. Marking an
// already-PAID payment as paid is a no-op returning the record unchanged:
// paid_at is set exactly once. FAILED and REFUNDED are terminal.
func (s *PaymentService) Transition(ctx context.Context, paymentID string, req TransitionPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}

	if payment.Status == models.PaymentStatusPaid && req.Status == models.PaymentStatusPaid {
		return payment, nil
	}
	if !payment.Status.CanTransition(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move payment from %s to %s", payment.Status, req.Status))
	}

	var paidAt *time.Time
	if req.Status == models.PaymentStatusPaid {
		now := time.Now().UTC()
		paidAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, paymentID, req.Status, paidAt, req.TransactionID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}

	updated, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload payment")
	}

	if s.metrics != nil {
		s.metrics.RecordPayment(string(updated.Status))
	}
	if updated.Status == models.PaymentStatusPaid {
		s.notifier.PaymentReceived(ctx, updated)
	}
	return updated, nil
}

// ListWithSummary returns all payments for an enrollment together with the
// summary recomputed from those rows. The aggregate is never stored, so it
// cannot drift from the ledger.
func (s *PaymentService) ListWithSummary(ctx context.Context, enrollmentID string) (*PaymentListResult, error) {
	enrollment, err := s.loadEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListByEnrollment(ctx, enrollmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	return &PaymentListResult{
		Payments: payments,
		Summary:  buildPaymentSummary(enrollment.FinalPrice, enrollment.Currency, payments),
	}, nil
}

// Export renders the payment schedule as CSV or PDF bytes.
func (s *PaymentService) Export(ctx context.Context, enrollmentID, format string) ([]byte, string, error) {
	result, err := s.ListWithSummary(ctx, enrollmentID)
	if err != nil {
		return nil, "", err
	}

	headers := []string{"#", "Due Date", "Amount", "Method", "Status", "Paid At", "Transaction"}
	rows := make([]map[string]string, 0, len(result.Payments))
	for i, p := range result.Payments {
		paidAt := ""
		if p.PaidAt != nil {
			paidAt = p.PaidAt.Format("2006-01-02")
		}
		txn := ""
		if p.TransactionID != nil {
			txn = *p.TransactionID
		}
		rows = append(rows, map[string]string{
			"#":           fmt.Sprintf("%d", i+1),
			"Due Date":    p.DueDate.Format("2006-01-02"),
			"Amount":      currency.Format(p.Amount, p.Currency),
			"Method":      string(p.Method),
			"Status":      string(p.Status),
			"Paid At":     paidAt,
			"Transaction": txn,
		})
	}
	dataset := export.Dataset{Headers: headers, Rows: rows}

	switch format {
	case "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", nil
	case "pdf":
		summary := []string{
			fmt.Sprintf("Total: %s", currency.Format(result.Summary.TotalAmount, result.Summary.Currency)),
			fmt.Sprintf("Paid: %s", currency.Format(result.Summary.PaidAmount, result.Summary.Currency)),
			fmt.Sprintf("Pending: %s", currency.Format(result.Summary.PendingAmount, result.Summary.Currency)),
		}
		payload, err := s.pdf.Render(dataset, "Payment Schedule", summary)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "export format must be csv or pdf")
	}
}

func (s *PaymentService) loadEnrollment(ctx context.Context, enrollmentID string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// buildPaymentSummary recomputes the aggregate view from the live payment
// set. totalAmount comes from the enrollment's immutable pricing snapshot.
func buildPaymentSummary(finalPrice float64, currencyCode string, payments []models.Payment) models.PaymentSummary {
	var paid float64
	for _, p := range payments {
		if p.Status == models.PaymentStatusPaid {
			paid += p.Amount
		}
	}
	paid = Round2(paid)

	var percentage float64
	if finalPrice > 0 {
		percentage = paid / finalPrice * 100
		if percentage < 0 {
			percentage = 0
		}
		if percentage > 100 {
			percentage = 100
		}
	}

	return models.PaymentSummary{
		TotalAmount:       Round2(finalPrice),
		PaidAmount:        paid,
		PendingAmount:     Round2(finalPrice - paid),
		PaymentPercentage: Round2(percentage),
		Currency:          currencyCode,
	}
}
