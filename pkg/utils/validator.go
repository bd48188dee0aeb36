// Package utils holds small helpers shared by the transport layers.
package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/turtacn/credcore/pkg/errors"
)

// identifierPattern bounds application and key ids: they end up in storage keys,
// URLs and log lines.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

var (
	defaultValidator = validator.New()
	matchFirstCap    = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap      = regexp.MustCompile("([a-z0-9])([A-Z])")
)

func init() {
	_ = defaultValidator.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return ValidIdentifier(fl.Field().String())
	})
}

// ValidIdentifier reports whether s is usable as an application or key id.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidateStruct validates s against its `validate` tags. Failures come back as a
// MalformedInput error whose metadata maps each field to what was wrong with it.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.MalformedInput(err.Error())
	}

	ce := errors.MalformedInput("request validation failed")
	for _, fe := range fieldErrs {
		ce = ce.WithMetadata(toSnakeCase(fe.Field()), formatValidationError(fe))
	}
	return ce
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "identifier":
		return "must be 1-128 letters, digits, '.', '_' or '-', starting with a letter or digit"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max", "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// toSnakeCase converts a string from CamelCase to snake_case.
func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}
