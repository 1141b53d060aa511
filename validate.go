package ryepay

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
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

// validateStruct runs the shared validator and converts failures into a
// coded error carrying per-field failure tags in its details.
func validateStruct(code string, value interface{}) *Error {
	err := structValidator.Struct(value)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return WrapError(code, "validation failed", err)
	}

	details := make(map[string]interface{}, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		details[fieldError.Field()] = fieldError.Tag()
	}
	return NewError(code, "validation failed", details)
}

// frameErrors renders a coded validation error in the shape the error
// callback expects.
func frameErrors(err *Error) []FrameError {
	if len(err.Details) == 0 {
		return []FrameError{{Message: err.Message}}
	}
	errs := make([]FrameError, 0, len(err.Details))
	for field, tag := range err.Details {
		errs = append(errs, FrameError{
			Attribute: field,
			Key:       "errors." + errorKey(tag),
			Message:   field + " is invalid",
		})
	}
	return errs
}

func errorKey(tag interface{}) string {
	s, ok := tag.(string)
	if !ok {
		return "invalid"
	}
	// Missing required fields report as blank, matching the frame SDK's own
	// error keys.
	if s == "required" || strings.HasPrefix(s, "required_") {
		return "blank"
	}
	return s
}
