// Package validation wraps go-playground/validator for service parameters.
package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jgirmay/livemesh/pkg/apperrors"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func Validate(data interface{}) []ValidationError {
	err := validate.Struct(data)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{Message: err.Error()}}
	}

	var errors []ValidationError
	for _, err := range verrs {
		msg := fmt.Sprintf("field must satisfy %s constraint", err.Tag())
		if err.Param() != "" {
			msg = fmt.Sprintf("field must satisfy %s=%s constraint", err.Tag(), err.Param())
		}
		errors = append(errors, ValidationError{
			Field:   err.Field(),
			Message: msg,
		})
	}
	return errors
}

// Struct validates data and folds any failures into a single 400 AppError.
func Struct(data interface{}) error {
	errs := Validate(data)
	if len(errs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Field+": "+e.Message)
	}
	return apperrors.Validation("invalid parameters", strings.Join(parts, "; "))
}
