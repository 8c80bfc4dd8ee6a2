package service

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-billing-api/internal/models"
	appErrors "github.com/noah-isme/edu-billing-api/pkg/errors"
)

type settingsRepository interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
	ListByKeys(ctx context.Context, keys []string) ([]models.Setting, error)
	Upsert(ctx context.Context, setting *models.Setting) error
}

const (
	settingKeyTaxRate     = "tax_rate"
	settingKeyCurrency    = "currency"
	settingKeyDisplayName = "institution_display_name"
)

type allowedSetting struct {
	Key         string
	Type        models.SettingType
	Description string
}

var allowedSettings = map[string]allowedSetting{
	settingKeyTaxRate: {
		Key:         settingKeyTaxRate,
		Type:        models.SettingTypeNumber,
		Description: "Tax rate applied to enrollments as a fraction between 0 and 1",
	},
	settingKeyCurrency: {
		Key:         settingKeyCurrency,
		Type:        models.SettingTypeString,
		Description: "ISO 4217 currency code used for all new enrollments",
	},
	settingKeyDisplayName: {
		Key:         settingKeyDisplayName,
		Type:        models.SettingTypeString,
		Description: "Institution name shown on receipts and exports",
	},
}

var settingDefaults = map[string]string{
	settingKeyTaxRate:  "0",
	settingKeyCurrency: "USD",
}

// settingsSnapshot is an explicit value-plus-expiry pair. There is no
// ambient module-level cache; staleness is bounded by the TTL and the
// snapshot can be dropped eagerly via Invalidate.
type settingsSnapshot struct {
	value     models.InstitutionSettings
	expiresAt time.Time
}

// SettingsService supplies institution-wide settings to the billing core.
// Consumers snapshot the tax rate and currency into the enrollment record at
// creation time; they must never re-read them for an existing enrollment.
type SettingsService struct {
	repo   settingsRepository
	ttl    time.Duration
	logger *zap.Logger

	mu       sync.RWMutex
	snapshot *settingsSnapshot
}

// NewSettingsService constructs the settings service.
func NewSettingsService(repo settingsRepository, ttl time.Duration, logger *zap.Logger) *SettingsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{repo: repo, ttl: ttl, logger: logger}
}

// Current returns the resolved institution settings, served from the
// snapshot while it is fresh.
func (s *SettingsService) Current(ctx context.Context) (models.InstitutionSettings, error) {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()
	if snap != nil && time.Now().Before(snap.expiresAt) {
		return snap.value, nil
	}

	resolved, err := s.load(ctx)
	if err != nil {
		return models.InstitutionSettings{}, err
	}

	s.mu.Lock()
	s.snapshot = &settingsSnapshot{value: resolved, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return resolved, nil
}

// Invalidate drops the snapshot so the next read hits storage. Called by the
// settings update flow.
func (s *SettingsService) Invalidate() {
	s.mu.Lock()
	s.snapshot = nil
	s.mu.Unlock()
}

// List returns all setting entries with defaults filled in.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	keys := []string{settingKeyTaxRate, settingKeyCurrency, settingKeyDisplayName}
	rows, err := s.repo.ListByKeys(ctx, keys)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list settings")
	}
	existing := make(map[string]models.Setting, len(rows))
	for _, row := range rows {
		existing[row.Key] = row
	}

	items := make([]models.Setting, 0, len(keys))
	for _, key := range keys {
		meta := allowedSettings[key]
		if row, ok := existing[key]; ok {
			items = append(items, row)
			continue
		}
		desc := meta.Description
		items = append(items, models.Setting{Key: key, Value: settingDefaults[key], Type: meta.Type, Description: &desc})
	}
	return items, nil
}

// Update validates and upserts one setting, then drops the snapshot so the
// new value becomes visible within the request rather than after the TTL.
func (s *SettingsService) Update(ctx context.Context, key, value string) (*models.Setting, error) {
	meta, ok := allowedSettings[key]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported setting key")
	}
	value, err := validateSettingValue(meta, value)
	if err != nil {
		return nil, err
	}

	desc := meta.Description
	setting := &models.Setting{Key: key, Value: value, Type: meta.Type, Description: &desc}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update setting")
	}

	s.Invalidate()
	s.logger.Info("setting updated", zap.String("key", key))
	return setting, nil
}

func (s *SettingsService) load(ctx context.Context) (models.InstitutionSettings, error) {
	resolved := models.InstitutionSettings{
		TaxRate:  0,
		Currency: settingDefaults[settingKeyCurrency],
	}

	rows, err := s.repo.ListByKeys(ctx, []string{settingKeyTaxRate, settingKeyCurrency, settingKeyDisplayName})
	if err != nil {
		if err == sql.ErrNoRows {
			return resolved, nil
		}
		return models.InstitutionSettings{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load settings")
	}

	for _, row := range rows {
		switch row.Key {
		case settingKeyTaxRate:
			rate, err := strconv.ParseFloat(row.Value, 64)
			if err != nil || rate < 0 || rate > 1 {
				s.logger.Warn("ignoring invalid tax_rate setting", zap.String("value", row.Value))
				continue
			}
			resolved.TaxRate = rate
		case settingKeyCurrency:
			if code := strings.ToUpper(strings.TrimSpace(row.Value)); len(code) == 3 {
				resolved.Currency = code
			}
		case settingKeyDisplayName:
			resolved.DisplayName = row.Value
		}
	}
	return resolved, nil
}

func validateSettingValue(meta allowedSetting, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch meta.Type {
	case models.SettingTypeNumber:
		num, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("%s expects a numeric value", meta.Key))
		}
		if meta.Key == settingKeyTaxRate && (num < 0 || num > 1) {
			return "", appErrors.Clone(appErrors.ErrValidation, "tax_rate must be between 0 and 1")
		}
		return value, nil
	case models.SettingTypeString:
		if meta.Key == settingKeyCurrency {
			code := strings.ToUpper(value)
			if len(code) != 3 {
				return "", appErrors.Clone(appErrors.ErrValidation, "currency expects a 3-letter ISO code")
			}
			return code, nil
		}
		return value, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported setting type")
	}
}
