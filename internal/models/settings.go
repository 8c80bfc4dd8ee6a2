package models

import "time"

// SettingType defines supported types for institution setting values.
type SettingType string

const (
	SettingTypeString SettingType = "STRING"
	SettingTypeNumber SettingType = "NUMBER"
)

// Setting represents a persisted institution-wide setting entry.
type Setting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description *string     `db:"description" json:"description,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// InstitutionSettings is the resolved view the billing core consumes. The tax
// rate is a fraction in [0,1]; it is snapshotted into each enrollment at
// creation time, never re-read afterwards.
type InstitutionSettings struct {
	TaxRate     float64 `json:"tax_rate"`
	Currency    string  `json:"currency"`
	DisplayName string  `json:"display_name"`
}
