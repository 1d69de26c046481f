// Package validation decodes and validates skill request bodies.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/formbricks/image-embedding-skill/internal/api/response"
	"github.com/formbricks/image-embedding-skill/internal/models"
	"github.com/formbricks/image-embedding-skill/internal/skillerrors"
)

// validate is a package-level singleton, safe for concurrent validate.Struct() calls.
// All registrations MUST happen in init() only; they are NOT thread-safe.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names (values[0].recordId) rather than Go names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	if err := validate.RegisterValidation("json_scalar", validateJSONScalar); err != nil {
		slog.Error("Failed to register json_scalar validator", "error", err)
	}
}

// FieldErrors is returned when struct validation fails. It matches skillerrors.ErrValidation
// and unwraps to validator.ValidationErrors.
type FieldErrors struct {
	errs    validator.ValidationErrors
	message string
}

// Error implements the error interface.
func (e *FieldErrors) Error() string {
	return e.message
}

// Unwrap returns the underlying validator errors.
func (e *FieldErrors) Unwrap() error {
	return e.errs
}

// Is reports whether target is the validation sentinel.
func (e *FieldErrors) Is(target error) bool {
	return errors.Is(skillerrors.ErrValidation, target)
}

// ValidateStruct validates a struct using go-playground/validator.
func ValidateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		return formatValidationErrors(err)
	}

	return nil
}

// DecodeSkillRequest parses body as a skill request and checks that every record carries a
// recordId, a data object, and the input field for kind. Any failure is a request-level
// validation error: the batch is rejected as a whole.
func DecodeSkillRequest(body []byte, kind models.InputKind) (*models.SkillRequest, error) {
	var req models.SkillRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, skillerrors.NewValidationError("body", "request body must be a JSON object with a values array: "+err.Error())
	}

	if err := ValidateStruct(&req); err != nil {
		return nil, err
	}

	field := inputField(kind)

	for i := range req.Values {
		if req.Values[i].Data.Input(kind) == "" {
			location := "values[" + strconv.Itoa(i) + "].data." + field

			return nil, skillerrors.NewValidationError(location, location+" is required")
		}
	}

	return &req, nil
}

func inputField(kind models.InputKind) string {
	if kind == models.InputKindText {
		return "text"
	}

	return "imageUrl"
}

// formatValidationErrors converts validator errors to a single FieldErrors value
// that can be used in RFC 7807 Problem Details responses.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, formatFieldError(fieldError))
		}

		return &FieldErrors{
			errs:    validationErrors,
			message: "validation failed: " + strings.Join(messages, "; "),
		}
	}

	return fmt.Errorf("validate: %w", err)
}

// formatFieldError formats a single field validation error.
func formatFieldError(fieldError validator.FieldError) string {
	field := location(fieldError)

	switch fieldError.Tag() {
	case "required":
		return field + " is required"
	case "json_scalar":
		return field + " must be a string, number, or boolean"
	default:
		return field + " is invalid"
	}
}

// location strips the root struct name from the namespace: SkillRequest.values[0].data -> values[0].data.
func location(fieldError validator.FieldError) string {
	ns := fieldError.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}

	return ns
}

// GetValidationErrorDetails extracts field-level error details from validation errors.
func GetValidationErrorDetails(err error) []response.ErrorDetail {
	var details []response.ErrorDetail

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			detail := response.ErrorDetail{
				Location: location(fieldError),
				Message:  formatFieldError(fieldError),
			}

			if raw, ok := fieldError.Value().(json.RawMessage); ok && len(raw) > 0 {
				detail.Value = string(raw)
			}

			details = append(details, detail)
		}

		return details
	}

	var fieldErr *skillerrors.ValidationError
	if errors.As(err, &fieldErr) && fieldErr.Field != "" && fieldErr.Field != "body" {
		details = append(details, response.ErrorDetail{
			Location: fieldErr.Field,
			Message:  fieldErr.Error(),
		})
	}

	return details
}

// RespondValidationError writes a 400 validation error response with RFC 7807 Problem Details.
func RespondValidationError(w http.ResponseWriter, err error) {
	response.RespondProblem(w, response.ProblemDetails{
		Title:  "Validation Error",
		Status: http.StatusBadRequest,
		Detail: err.Error(),
		Errors: GetValidationErrorDetails(err),
	})
}

// validateJSONScalar accepts a json.RawMessage holding a string, number, or boolean.
func validateJSONScalar(fl validator.FieldLevel) bool {
	raw, ok := fl.Field().Interface().(json.RawMessage)
	if !ok {
		return false
	}

	return models.IsJSONScalar(raw)
}
