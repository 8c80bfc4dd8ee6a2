package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
)

// Notifier abstracts outbound "send a notification for event X" calls.
// Delivery mechanics (email, push, templates) live outside this core.
type Notifier interface {
	EnrollmentCreated(ctx context.Context, enrollment *models.EnrollmentDetail)
	PaymentReceived(ctx context.Context, payment *models.Payment)
}

// LogNotifier records notification events to the structured log. It stands
// in wherever a real delivery channel is not wired.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) EnrollmentCreated(ctx context.Context, enrollment *models.EnrollmentDetail) {
	n.logger.Info("notification: enrollment created",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_email", enrollment.StudentEmail),
		zap.Float64("final_price", enrollment.FinalPrice),
		zap.String("currency", enrollment.Currency),
	)
}

func (n *LogNotifier) PaymentReceived(ctx context.Context, payment *models.Payment) {
	n.logger.Info("notification: payment received",
		zap.String("payment_id", payment.ID),
		zap.String("enrollment_id", payment.EnrollmentID),
		zap.Float64("amount", payment.Amount),
	)
}
