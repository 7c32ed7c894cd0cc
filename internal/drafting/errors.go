package drafting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// InputError is returned when the request is missing or has invalid fields.
// It is reported to the caller verbatim.
type InputError struct {
	Message string
	Fields  []FieldError
	Cause   error
}

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("input error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("input error: %s", e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// EntitlementError is returned when the organization may not draft replies.
type EntitlementError struct {
	Message string
	Cause   error
}

func (e *EntitlementError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("entitlement error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("entitlement error: %s", e.Message)
}

func (e *EntitlementError) Unwrap() error {
	return e.Cause
}

// UpstreamError is returned when the generation provider fails. Status is
// the provider's HTTP-style status.
type UpstreamError struct {
	Status  int
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("upstream error (%d): %s: %v", e.Status, e.Message, e.Cause)
	}
	return fmt.Sprintf("upstream error (%d): %s", e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// EmptyResultError is returned when enforcement leaves nothing of the
// generated draft.
type EmptyResultError struct {
	Raw string
}

func (e *EmptyResultError) Error() string {
	return "empty result error: draft was empty after enforcement"
}

// inputErrorFrom converts validator output into an InputError.
func inputErrorFrom(err error) *InputError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &InputError{Message: "invalid request", Cause: err}
	}
	fields := make([]FieldError, 0, len(verrs))
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
		names = append(names, fe.Field())
	}
	return &InputError{
		Message: "invalid fields: " + strings.Join(names, ", "),
		Fields:  fields,
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
