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

type mockCourseRepo struct {
	courses map[string]models.Course
	prices  map[string][]models.CourseFormatPrice
	lookups int
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ListFormatPrices(ctx context.Context, courseID string) ([]models.CourseFormatPrice, error) {
	m.lookups++
	return m.prices[courseID], nil
}

type memoryCacheRepo struct {
	entries map[string][]byte
	deletes []string
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = nil
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deletes = append(m.deletes, pattern)
	return nil
}

func TestAvailableFormatsFiltersInactiveAndFree(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]models.Course{"c1": {ID: "c1", Active: true}},
		prices: map[string][]models.CourseFormatPrice{
			"c1": {
				{CourseID: "c1", Format: models.FormatOneToOne, BasePrice: 0, Active: true},
				{CourseID: "c1", Format: models.FormatGroup, BasePrice: 250, Active: true},
			},
		},
	}
	svc := NewCourseService(repo, nil, 0, nil)

	offers, err := svc.AvailableFormats(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, models.FormatGroup, offers[0].Format)
	assert.Equal(t, 250.0, offers[0].BasePrice)
}

func TestAvailableFormatsInactiveCourse(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1", Active: false}}}
	svc := NewCourseService(repo, nil, 0, nil)

	offers, err := svc.AvailableFormats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, offers)
}

func TestAvailableFormatsCourseNotFound(t *testing.T) {
	svc := NewCourseService(&mockCourseRepo{}, nil, 0, nil)

	_, err := svc.AvailableFormats(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBasePriceForDistinguishesConfigErrors(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]models.Course{
			"priced":   {ID: "priced", Active: true},
			"unpriced": {ID: "unpriced", Active: true},
		},
		prices: map[string][]models.CourseFormatPrice{
			"priced": {
				{CourseID: "priced", Format: models.FormatGroup, BasePrice: 250, Active: true},
				{CourseID: "priced", Format: models.FormatOneToOne, BasePrice: 0, Active: true},
			},
		},
	}
	svc := NewCourseService(repo, nil, 0, nil)

	price, err := svc.BasePriceFor(context.Background(), "priced", models.FormatGroup)
	require.NoError(t, err)
	assert.Equal(t, 250.0, price)

	// A zero-priced format is not purchasable.
	_, err = svc.BasePriceFor(context.Background(), "priced", models.FormatOneToOne)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFormatNotAvailable.Code, appErrors.FromError(err).Code)

	// A course with no priced formats at all blocks enrollment differently.
	_, err = svc.BasePriceFor(context.Background(), "unpriced", models.FormatGroup)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoPricingConfigured.Code, appErrors.FromError(err).Code)

	_, err = svc.BasePriceFor(context.Background(), "priced", "HYBRID")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAvailableFormatsWritesCache(t *testing.T) {
	repo := &mockCourseRepo{
		courses: map[string]models.Course{"c1": {ID: "c1", Active: true}},
		prices: map[string][]models.CourseFormatPrice{
			"c1": {{CourseID: "c1", Format: models.FormatGroup, BasePrice: 100, Active: true}},
		},
	}
	cacheRepo := &memoryCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewCourseService(repo, cacheSvc, time.Minute, nil)

	_, err := svc.AvailableFormats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.entries, "catalog:formats:c1")

	svc.InvalidateCatalog(context.Background())
	assert.Equal(t, []string{"catalog:formats:*"}, cacheRepo.deletes)
}
