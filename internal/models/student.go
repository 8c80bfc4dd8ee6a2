package models

import "time"

// Student represents a learner registered in the institution directory.
// Email is globally unique and enforced by the storage layer.
type Student struct {
	ID            string    `db:"id" json:"id"`
	Email         string    `db:"email" json:"email"`
	FullName      string    `db:"full_name" json:"full_name"`
	Phone         string    `db:"phone" json:"phone"`
	AgeGroup      string    `db:"age_group" json:"age_group"`
	ParentName    *string   `db:"parent_name" json:"parent_name,omitempty"`
	ParentContact *string   `db:"parent_contact" json:"parent_contact,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	AgeGroup  string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
