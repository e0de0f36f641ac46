// Package validation wires the form predicates into a go-playground validator
// engine and turns its failures into per-field messages.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
)

var (
	engine     *validator.Validate
	engineOnce sync.Once
)

// Engine returns the shared validator with the custom tags registered
func Engine() *validator.Validate {
	engineOnce.Do(func() {
		engine = validator.New(validator.WithRequiredStructEnabled())
		configure(engine)
	})
	return engine
}

func configure(v *validator.Validate) {
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	_ = v.RegisterValidation("phone", stringRule(form.IsPhone))
	_ = v.RegisterValidation("national_id", stringRule(form.IsNationalID))
	_ = v.RegisterValidation("full_name", stringRule(form.IsFullName))
	_ = v.RegisterValidation("password", stringRule(form.IsPassword))
	_ = v.RegisterValidation("date_after", dateAfter)
}

// ConfigureGin makes gin's binding use the "validate" tag and the custom rules,
// so request structs bound by the devserver share the client's forms.
func ConfigureGin() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.SetTagName("validate")
		configure(v)
	}
}

func stringRule(pred func(string) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pred(fl.Field().String())
	}
}

var timeType = reflect.TypeOf(time.Time{})

// dateAfter checks a time field against the sibling named by the tag param
func dateAfter(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Type() != timeType {
		return false
	}
	parent := reflect.Indirect(fl.Parent())
	if parent.Kind() != reflect.Struct {
		return false
	}
	other := parent.FieldByName(fl.Param())
	if !other.IsValid() || other.Type() != timeType {
		return false
	}
	return form.IsDateRange(other.Interface().(time.Time), field.Interface().(time.Time))
}

// Error carries the per-field messages of a rejected form
type Error struct {
	Fields form.Errors
}

func (e *Error) Error() string {
	fields := e.Fields.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Fields[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is lets callers match any validation failure with shared.ErrInvalidInput
func (e *Error) Is(target error) bool {
	return errors.Is(shared.ErrInvalidInput, target)
}

// Validate returns one message per failing field. The result is empty, never
// nil, when the form is valid.
func Validate(v any) form.Errors {
	out := form.Errors{}
	err := Engine().Struct(v)
	if err == nil {
		return out
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.Add("", err.Error())
		return out
	}
	for _, fe := range verrs {
		out.Add(fe.Field(), Message(fe))
	}
	return out
}

// Check is Validate for call sites that want an error
func Check(v any) error {
	if errs := Validate(v); !errs.Valid() {
		return &Error{Fields: errs}
	}
	return nil
}

// Message returns the human-readable text for a failed rule
func Message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "phone":
		return "Phone number must be exactly 10 digits"
	case "national_id":
		return "ID number must be exactly 12 digits"
	case "full_name":
		return "Full name may only contain letters and spaces, up to 50 characters"
	case "password":
		return "Password must be at least 6 characters"
	case "date_after":
		return "Expiry date must be after the issue date"
	case "eqfield":
		return "Does not match"
	case "nefield":
		return "Must be different"
	case "email":
		return "Invalid email format"
	case "url":
		return "Invalid URL format"
	case "min":
		if e.Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "numeric":
		return "Must be numeric"
	default:
		return "Invalid value"
	}
}
