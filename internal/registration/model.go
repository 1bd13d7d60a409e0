package registration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is the applicant's self-declared registration type.
type Category string

const (
	CategoryStudent  Category = "student"
	CategoryEmployee Category = "employee"
	CategoryBusiness Category = "business"
)

// ErrUnknownCategory is returned when a category outside the closed set is parsed.
var ErrUnknownCategory = errors.New("unknown category")

// Categories lists every accepted category in display order.
func Categories() []Category {
	return []Category{CategoryStudent, CategoryEmployee, CategoryBusiness}
}

// ParseCategory maps a raw value onto the closed category set.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryStudent, CategoryEmployee, CategoryBusiness:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// Registration is a persisted registration record. Detail fields for the
// categories other than Category may carry stray values and are kept as-is.
type Registration struct {
	ID         string    `json:"id"`
	FirstName  string    `json:"first_name"`
	MiddleName *string   `json:"middle_name"`
	LastName   string    `json:"last_name"`
	Mobile     string    `json:"mobile"`
	Email      string    `json:"email"`
	DOB        time.Time `json:"dob"`
	Address    string    `json:"address"`
	Photo      string    `json:"photo"`
	Category   Category  `json:"category"`

	// student
	Degree      *string `json:"degree"`
	Institution *string `json:"institution"`

	// employee
	EmpDegree   *string `json:"emp_degree"`
	Profession  *string `json:"profession"`
	Company     *string `json:"company"`
	Designation *string `json:"designation"`

	// business
	BusDegree    *string `json:"bus_degree"`
	BusinessType *string `json:"business_type"`
	BusinessName *string `json:"business_name"`

	CreatedAt time.Time `json:"created_at"`
}

// FullName joins first, middle and last name the way the admin search does.
func (r Registration) FullName() string {
	return r.FirstName + " " + Deref(r.MiddleName) + " " + r.LastName
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// OptionalString returns nil for blank input so optional columns stay NULL.
func OptionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
