package registration

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateLayout is the wire format of the date of birth field.
const DateLayout = "2006-01-02"

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	mobilePattern = regexp.MustCompile(`^\d{10,15}$`)
	mobileStrip   = strings.NewReplacer(" ", "", "-", "", "+", "")
)

// Submission holds the raw text fields of a registration form, keyed by
// their snake_case names. HasPhoto reports whether a photo file was attached.
type Submission struct {
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	LastName   string `json:"last_name" validate:"required"`
	Mobile     string `json:"mobile" validate:"required,mobile"`
	Email      string `json:"email" validate:"required,simple_email"`
	DOB        string `json:"dob" validate:"required,datetime=2006-01-02"`
	Address    string `json:"address" validate:"required"`
	HasPhoto   bool   `json:"photo" validate:"required"`
	Category   string `json:"category" validate:"required,oneof=student employee business"`

	Degree      string `json:"degree" validate:"required_if=Category student"`
	Institution string `json:"institution" validate:"required_if=Category student"`

	EmpDegree   string `json:"emp_degree" validate:"required_if=Category employee"`
	Profession  string `json:"profession" validate:"required_if=Category employee"`
	Company     string `json:"company" validate:"required_if=Category employee"`
	Designation string `json:"designation" validate:"required_if=Category employee"`

	BusDegree    string `json:"bus_degree" validate:"required_if=Category business"`
	BusinessType string `json:"business_type" validate:"required_if=Category business"`
	BusinessName string `json:"business_name" validate:"required_if=Category business"`
}

// fieldAliases maps every accepted spelling onto the snake_case field name.
var fieldAliases = map[string]string{
	"firstName":    "first_name",
	"middleName":   "middle_name",
	"lastName":     "last_name",
	"empDegree":    "emp_degree",
	"busDegree":    "bus_degree",
	"businessType": "business_type",
	"businessName": "business_name",
	"whoareyou":    "category",
}

// NormalizeFieldName returns the snake_case name for a submitted form key.
func NormalizeFieldName(key string) string {
	if canonical, ok := fieldAliases[key]; ok {
		return canonical
	}
	return key
}

// SubmissionFromForm builds a Submission from posted form values. Keys are
// normalized to snake_case; when both spellings are sent the snake_case one
// wins. Unknown keys, including id and created_at, are dropped.
func SubmissionFromForm(values url.Values) Submission {
	fields := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		name := NormalizeFieldName(key)
		if _, seen := fields[name]; seen && name != key {
			continue
		}
		fields[name] = strings.TrimSpace(vals[0])
	}
	return Submission{
		FirstName:    fields["first_name"],
		MiddleName:   fields["middle_name"],
		LastName:     fields["last_name"],
		Mobile:       fields["mobile"],
		Email:        fields["email"],
		DOB:          fields["dob"],
		Address:      fields["address"],
		Category:     strings.ToLower(fields["category"]),
		Degree:       fields["degree"],
		Institution:  fields["institution"],
		EmpDegree:    fields["emp_degree"],
		Profession:   fields["profession"],
		Company:      fields["company"],
		Designation:  fields["designation"],
		BusDegree:    fields["bus_degree"],
		BusinessType: fields["business_type"],
		BusinessName: fields["business_name"],
	}
}

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every invalid field of a submission.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// Map returns the field errors keyed by field name.
func (e *ValidationError) Map() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Message
	}
	return out
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("simple_email", func(fl validator.FieldLevel) bool {
		return ValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return ValidMobile(fl.Field().String())
	})
	return v
}

// ValidEmail checks the two-part local@domain.tld shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ValidMobile checks that s is 10 to 15 digits once spaces, hyphens and
// plus signs are removed.
func ValidMobile(s string) bool {
	return mobilePattern.MatchString(mobileStrip.Replace(s))
}

// Validate checks every required field, including the detail group of the
// selected category, and reports all violations together.
func (s Submission) Validate() error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		if fe.Field() == "photo" {
			return "Please upload a photo"
		}
		return "This field is required"
	case "simple_email":
		return "Please enter a valid email address"
	case "mobile":
		return "Please enter a valid mobile number"
	case "datetime":
		return "Please enter a valid date (YYYY-MM-DD)"
	case "oneof":
		return "Please choose student, employee or business"
	}
	return "Invalid value"
}

// Record converts a validated submission into a Registration referencing
// the stored photo. Identity and creation time are left for the store.
func (s Submission) Record(photoRef string) (Registration, error) {
	dob, err := time.Parse(DateLayout, s.DOB)
	if err != nil {
		return Registration{}, fmt.Errorf("parse dob: %w", err)
	}
	cat, err := ParseCategory(s.Category)
	if err != nil {
		return Registration{}, err
	}
	return Registration{
		FirstName:    s.FirstName,
		MiddleName:   OptionalString(s.MiddleName),
		LastName:     s.LastName,
		Mobile:       s.Mobile,
		Email:        s.Email,
		DOB:          dob,
		Address:      s.Address,
		Photo:        photoRef,
		Category:     cat,
		Degree:       OptionalString(s.Degree),
		Institution:  OptionalString(s.Institution),
		EmpDegree:    OptionalString(s.EmpDegree),
		Profession:   OptionalString(s.Profession),
		Company:      OptionalString(s.Company),
		Designation:  OptionalString(s.Designation),
		BusDegree:    OptionalString(s.BusDegree),
		BusinessType: OptionalString(s.BusinessType),
		BusinessName: OptionalString(s.BusinessName),
	}, nil
}
