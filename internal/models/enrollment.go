package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusPending   EnrollmentStatus = "PENDING"
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
	EnrollmentStatusSuspended EnrollmentStatus = "SUSPENDED"
)

// DiscountType identifies how a discount value is interpreted.
type DiscountType string

const (
	DiscountNone       DiscountType = "NONE"
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountAmount     DiscountType = "AMOUNT"
)

// PaymentPlan identifies how the final price is split into payments.
type PaymentPlan string

const (
	PlanFull         PaymentPlan = "FULL"
	PlanInstallments PaymentPlan = "INSTALLMENTS"
)

// Enrollment is the central billing record. The pricing snapshot columns are
// written once at creation and never recomputed; later changes to course
// prices or the institution tax rate do not touch existing rows.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	CourseID        string           `db:"course_id" json:"course_id"`
	Format          CourseFormat     `db:"format" json:"format"`
	SessionCount    int              `db:"session_count" json:"session_count"`
	SessionDuration int              `db:"session_duration" json:"session_duration"`

	BasePrice      float64      `db:"base_price" json:"base_price"`
	DiscountType   DiscountType `db:"discount_type" json:"discount_type"`
	DiscountValue  float64      `db:"discount_value" json:"discount_value"`
	DiscountAmount float64      `db:"discount_amount" json:"discount_amount"`
	Subtotal       float64      `db:"subtotal" json:"subtotal"`
	TaxRate        float64      `db:"tax_rate" json:"tax_rate"`
	TaxAmount      float64      `db:"tax_amount" json:"tax_amount"`
	FinalPrice     float64      `db:"final_price" json:"final_price"`
	Currency       string       `db:"currency" json:"currency"`

	PaymentPlan  PaymentPlan      `db:"payment_plan" json:"payment_plan"`
	Installments int              `db:"installments" json:"installments"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	Schedule     *string          `db:"schedule_note" json:"schedule_note,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName  string `db:"student_name" json:"student_name"`
	StudentEmail string `db:"student_email" json:"student_email"`
	CourseName   string `db:"course_name" json:"course_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// enrollmentTransitions is the allowed lifecycle graph.
var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentStatusPending:   {EnrollmentStatusActive, EnrollmentStatusCancelled},
	EnrollmentStatusActive:    {EnrollmentStatusCompleted, EnrollmentStatusSuspended, EnrollmentStatusCancelled},
	EnrollmentStatusSuspended: {EnrollmentStatusActive, EnrollmentStatusCancelled},
}

// CanTransition reports whether an enrollment may move from one status to another.
func (s EnrollmentStatus) CanTransition(to EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}
