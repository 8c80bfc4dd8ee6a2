package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
	"github.com/noah-isme/edu-billing-api/internal/repository"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByEmail(ctx context.Context, email string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
}

// NewStudentInput holds details for creating a student as part of the
// enrollment flow or standalone.
type NewStudentInput struct {
	Email         string  `json:"email" validate:"required,email"`
	FullName      string  `json:"full_name" validate:"required"`
	Phone         string  `json:"phone"`
	AgeGroup      string  `json:"age_group"`
	ParentName    *string `json:"parent_name,omitempty"`
	ParentContact *string `json:"parent_contact,omitempty"`
}

// StudentService resolves and manages student identities. Emails are
// globally unique; the storage-level index is the authoritative guard and
// the pre-check only exists to fail fast.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
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
	return students, pagination, nil
}

// Get returns a single student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student. A duplicate email fails with
// DUPLICATE_EMAIL carrying the existing student's identity; the caller
// decides whether to switch to "use existing" — there is no silent merge.
func (s *StudentService) Create(ctx context.Context, req NewStudentInput) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	// Fast-path UX hint only; the unique index decides under concurrency.
	exists, err := s.repo.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return nil, s.duplicateEmailError(ctx, req.Email)
	}

	student := &models.Student{
		Email:         req.Email,
		FullName:      req.FullName,
		Phone:         req.Phone,
		AgeGroup:      req.AgeGroup,
		ParentName:    req.ParentName,
		ParentContact: req.ParentContact,
		Active:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, s.duplicateEmailError(ctx, req.Email)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	return student, nil
}

// Resolve returns the student for an enrollment request: an existing id is
// used directly, otherwise the new-student details are created. Retrying
// with the same email after a duplicate reports the existing identity so the
// caller can resubmit in "use existing" mode; it never creates a twin.
func (s *StudentService) Resolve(ctx context.Context, studentID string, newStudent *NewStudentInput) (*models.Student, error) {
	if studentID != "" && newStudent != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "supply either an existing student id or new student details, not both")
	}
	if studentID != "" {
		return s.Get(ctx, studentID)
	}
	if newStudent == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student reference or new student details required")
	}
	return s.Create(ctx, *newStudent)
}

func (s *StudentService) duplicateEmailError(ctx context.Context, email string) error {
	details := map[string]string{"email": email}
	existing, err := s.repo.FindByEmail(ctx, email)
	if err == nil && existing != nil {
		details["existing_student_id"] = existing.ID
		details["existing_student_name"] = existing.FullName
	} else if err != nil && err != sql.ErrNoRows {
		s.logger.Warn("failed to load existing student for duplicate email", zap.Error(err))
	}
	return appErrors.WithDetails(appErrors.ErrDuplicateEmail, details)
}
