package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ListFormatPrices(ctx context.Context, courseID string) ([]models.CourseFormatPrice, error)
}

// CourseService resolves which enrollment formats are purchasable for a
// course and at what base price. The catalog itself is read-only here.
type CourseService struct {
	repo     courseRepository
	cache    *CacheService
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func formatOffersCacheKey(courseID string) string {
	return fmt.Sprintf("catalog:formats:%s", courseID)
}

// AvailableFormats returns the purchasable formats of a course. A format is
// available iff its configured base price is positive and the row is active.
func (s *CourseService) AvailableFormats(ctx context.Context, courseID string) ([]models.FormatOffer, error) {
	key := formatOffersCacheKey(courseID)
	if s.cache.Enabled() {
		var cached []models.FormatOffer
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			return cached, nil
		}
	}

	course, err := s.repo.FindByID(ctx, courseID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !course.Active {
		return []models.FormatOffer{}, nil
	}

	prices, err := s.repo.ListFormatPrices(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load format prices")
	}

	offers := make([]models.FormatOffer, 0, len(prices))
	for _, price := range prices {
		if !price.Active || price.BasePrice <= 0 {
			continue
		}
		offers = append(offers, models.FormatOffer{Format: price.Format, BasePrice: price.BasePrice})
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, key, offers, s.cacheTTL)
	}
	return offers, nil
}

// BasePriceFor resolves the base price of one format. A course with zero
// available formats blocks enrollment entirely; a specific unavailable
// format is reported distinctly so the operator can fix course setup.
func (s *CourseService) BasePriceFor(ctx context.Context, courseID string, format models.CourseFormat) (float64, error) {
	if !format.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown format %q", format))
	}
	offers, err := s.AvailableFormats(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if len(offers) == 0 {
		return 0, appErrors.Clone(appErrors.ErrNoPricingConfigured, "")
	}
	for _, offer := range offers {
		if offer.Format == format {
			return offer.BasePrice, nil
		}
	}
	return 0, appErrors.Clone(appErrors.ErrFormatNotAvailable, fmt.Sprintf("format %s not available for course", format))
}

// InvalidateCatalog drops cached pricing for all courses. Called when
// settings that influence display of offers change.
func (s *CourseService) InvalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, "catalog:formats:*"); err != nil {
		s.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}
