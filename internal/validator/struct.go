package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"converse-backend/internal/apperr"

	playground "github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *playground.Validate {
	v := playground.New(playground.WithRequiredStructEnabled())

	// report fields under the names clients send them as
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Struct checks the validate tags of s and turns the first failure into a
// Validation error with a readable message.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors playground.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("validating %T: %w", s, err)
	}
	return apperr.Wrap(apperr.Validation, describe(fieldErrors[0]), err)
}

func describe(fe playground.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s can't be longer than %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", field, fe.Param())
	default:
		return field + " is invalid"
	}
}
