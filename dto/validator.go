package dto

import (
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/snaplink-labs/snaplink_api/shared"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("short_code", validateShortCode)
	validate.RegisterValidation("http_url", validateHTTPURL)
}

func GetValidator() *validator.Validate {
	return validate
}

// validateShortCode restricts caller-supplied aliases to the unambiguous
// code alphabet.
func validateShortCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if code == "" {
		return true
	}
	return shared.ValidCode(code)
}

// validateHTTPURL accepts absolute http/https URLs with a host. The stock
// "url" tag admits schemes a redirect must never emit (javascript:, data:).
func validateHTTPURL(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	if raw == "" {
		return true
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func FormatValidationErrors(err error) []ValidationError {
	var errors []ValidationError

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			var message string

			switch fieldError.Tag() {
			case "required":
				message = fieldError.Field() + " is required"
			case "min":
				message = fieldError.Field() + " must be at least " + fieldError.Param() + " characters"
			case "max":
				message = fieldError.Field() + " must be at most " + fieldError.Param() + " characters"
			case "oneof":
				message = fieldError.Field() + " must be one of: " + fieldError.Param()
			case "short_code":
				message = fieldError.Field() + " must be 3-32 characters from the code alphabet (no 0, O, 1, l, I)"
			case "http_url":
				message = fieldError.Field() + " must be an absolute http or https URL"
			default:
				message = fieldError.Field() + " is invalid"
			}

			errors = append(errors, ValidationError{
				Field:   fieldError.Field(),
				Message: message,
			})
		}
	}

	return errors
}

type Validator interface {
	Validate() error
}

func CreateValidationErrorResponse(err error) ValidationErrorResponse {
	return ValidationErrorResponse{
		Code:    400,
		Message: "Validation failed",
		Errors:  FormatValidationErrors(err),
	}
}
