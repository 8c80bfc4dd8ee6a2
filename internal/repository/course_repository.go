package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-billing-api/internal/models"
)

// CourseRepository reads course and per-format pricing rows. The billing core
// never writes to the catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByID returns a course by its ID.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, name, active, created_at, updated_at FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// ListFormatPrices returns all configured format price rows for a course,
// including inactive and non-positive ones; availability is decided upstream.
func (r *CourseRepository) ListFormatPrices(ctx context.Context, courseID string) ([]models.CourseFormatPrice, error) {
	const query = `SELECT course_id, format, base_price, active FROM course_format_prices WHERE course_id = $1 ORDER BY format`
	var prices []models.CourseFormatPrice
	if err := r.db.SelectContext(ctx, &prices, query, courseID); err != nil {
		return nil, fmt.Errorf("list format prices: %w", err)
	}
	return prices, nil
}
