package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is shared by every request type; it caches struct metadata
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// pastdate accepts a YYYY-MM-DD date that is not after today
	if err := v.RegisterValidation("pastdate", func(fl validator.FieldLevel) bool {
		t, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil && !t.After(time.Now())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateStruct checks v against its validate tags and wraps any failure in kind
func validateStruct(v any, kind error) error {
	return invalid(validate.Struct(v), kind)
}

// validateVar checks a single value against tag
func validateVar(field string, value any, tag string, kind error) error {
	err := validate.Var(value, tag)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", kind, describe(field, verrs[0]))
	}
	return invalid(err, kind)
}

func invalid(err, kind error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", kind, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe.Field(), fe))
	}
	return fmt.Errorf("%w: %s", kind, strings.Join(msgs, "; "))
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "datetime":
		return field + " must be YYYY-MM-DD"
	case "pastdate":
		return field + " must not be in the future"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "url", "http_url":
		return field + " must be a URL"
	}
	return fmt.Sprintf("%s failed the %s check", field, fe.Tag())
}

// trimmed returns a trimmed copy of p, optionally lowercased. Nil stays nil.
func trimmed(p *string, lower bool) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if lower {
		v = strings.ToLower(v)
	}
	return &v
}
