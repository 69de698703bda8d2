package models

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// A zero Date counts as missing.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(Date); ok {
			return d.String()
		}
		return nil
	}, Date{})

	_ = v.RegisterValidation("course", func(fl validator.FieldLevel) bool {
		return IsCourse(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// ValidationError maps JSON field names to a short reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Validate checks v against its validate tags. Failures are returned as
// *ValidationError.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string)}
	for _, fe := range verrs {
		field := fe.Field()
		// Collapse courses[2] onto courses.
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		if _, exists := out.Fields[field]; exists {
			continue
		}
		out.Fields[field] = reason(fe)
	}
	return out
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("needs at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("at most %s characters", fe.Param())
	case "email":
		return "not a valid email"
	case "unique":
		return "must not repeat"
	case "course":
		return fmt.Sprintf("unknown course %q", fe.Value())
	case "phone":
		return "must be exactly 10 digits"
	}
	return "failed " + fe.Tag()
}
