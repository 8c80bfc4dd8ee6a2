package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type mockSettingsRepo struct {
	values map[string]string
	loads  int
	upsert *models.Setting
}

func (m *mockSettingsRepo) Get(ctx context.Context, key string) (*models.Setting, error) {
	if v, ok := m.values[key]; ok {
		return &models.Setting{Key: key, Value: v}, nil
	}
	return nil, nil
}

func (m *mockSettingsRepo) ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error) {
	m.loads++
	var rows []models.Setting
	for _, key := range keys {
		if v, ok := m.values[key]; ok {
			rows = append(rows, models.Setting{Key: key, Value: v})
		}
	}
	return rows, nil
}

func (m *mockSettingsRepo) Upsert(ctx context.Context, setting *models.Setting) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[setting.Key] = setting.Value
	m.upsert = setting
	return nil
}

func TestCurrentAppliesDefaults(t *testing.T) {
	svc := NewSettingsService(&mockSettingsRepo{}, time.Minute, nil)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)

	assert.Zero(t, settings.TaxRate)
	assert.Equal(t, "USD", settings.Currency)
	assert.Empty(t, settings.DisplayName)
}

func TestCurrentParsesStoredValues(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{
		"tax_rate":                 "0.18",
		"currency":                 "inr",
		"institution_display_name": "Acme Academy",
	}}
	svc := NewSettingsService(repo, time.Minute, nil)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.18, settings.TaxRate)
	assert.Equal(t, "INR", settings.Currency)
	assert.Equal(t, "Acme Academy", settings.DisplayName)
}

func TestCurrentIgnoresInvalidTaxRate(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{"tax_rate": "banana"}}
	svc := NewSettingsService(repo, time.Minute, nil)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Zero(t, settings.TaxRate)
}

func TestCurrentServesSnapshotWithinTTL(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{"tax_rate": "0.1"}}
	svc := NewSettingsService(repo, time.Minute, nil)

	_, err := svc.Current(context.Background())
	require.NoError(t, err)
	_, err = svc.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.loads, "second read within TTL must not hit storage")
}

func TestInvalidateDropsSnapshot(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{"tax_rate": "0.1"}}
	svc := NewSettingsService(repo, time.Minute, nil)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.1, settings.TaxRate)

	repo.values["tax_rate"] = "0.2"
	svc.Invalidate()

	settings, err = svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.2, settings.TaxRate)
	assert.Equal(t, 2, repo.loads)
}

func TestUpdateSettingInvalidatesSnapshot(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{"tax_rate": "0.1"}}
	svc := NewSettingsService(repo, time.Hour, nil)

	_, err := svc.Current(context.Background())
	require.NoError(t, err)

	setting, err := svc.Update(context.Background(), "tax_rate", "0.25")
	require.NoError(t, err)
	assert.Equal(t, "0.25", setting.Value)

	settings, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.25, settings.TaxRate, "new value must be visible before the TTL")
}

func TestUpdateSettingValidation(t *testing.T) {
	svc := NewSettingsService(&mockSettingsRepo{}, time.Minute, nil)

	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "grading_scale", "10"},
		{"tax rate not numeric", "tax_rate", "lots"},
		{"tax rate above one", "tax_rate", "1.5"},
		{"tax rate negative", "tax_rate", "-0.1"},
		{"currency wrong length", "currency", "EURO"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Update(context.Background(), tc.key, tc.value)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
		})
	}
}

func TestUpdateCurrencyUppercased(t *testing.T) {
	repo := &mockSettingsRepo{}
	svc := NewSettingsService(repo, time.Minute, nil)

	setting, err := svc.Update(context.Background(), "currency", " eur ")
	require.NoError(t, err)
	assert.Equal(t, "EUR", setting.Value)
}

func TestListFillsDefaults(t *testing.T) {
	repo := &mockSettingsRepo{values: map[string]string{"currency": "GBP"}}
	svc := NewSettingsService(repo, time.Minute, nil)

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	byKey := make(map[string]models.Setting, len(items))
	for _, item := range items {
		byKey[item.Key] = item
	}
	assert.Equal(t, "GBP", byKey["currency"].Value)
	assert.Equal(t, "0", byKey["tax_rate"].Value)
}
