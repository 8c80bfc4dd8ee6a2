package models

import "time"

// CourseFormat is the delivery mode a course can be purchased in.
type CourseFormat string

const (
	FormatOneToOne CourseFormat = "ONE_TO_ONE"
	FormatGroup    CourseFormat = "GROUP"
)

// Valid reports whether the format is one of the known delivery modes.
func (f CourseFormat) Valid() bool {
	return f == FormatOneToOne || f == FormatGroup
}

// Course is read-only from the billing core's perspective; pricing rows are
// maintained by the catalog system.
type Course struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CourseFormatPrice configures the base price of one delivery mode.
type CourseFormatPrice struct {
	CourseID  string       `db:"course_id" json:"course_id"`
	Format    CourseFormat `db:"format" json:"format"`
	BasePrice float64      `db:"base_price" json:"base_price"`
	Active    bool         `db:"active" json:"active"`
}

// FormatOffer is the resolved purchasable view of one format.
type FormatOffer struct {
	Format    CourseFormat `json:"format"`
	BasePrice float64      `json:"base_price"`
}
