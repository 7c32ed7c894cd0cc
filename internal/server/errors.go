// Package server provides the HTTP API for drafting review replies.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/reply-drafter/internal/drafting"
	"github.com/jonathan/reply-drafter/internal/schemas"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	Fields         any    `json:"fields,omitempty"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		inputErr       *drafting.InputError
		schemaErr      *schemas.ValidationError
		entitlementErr *drafting.EntitlementError
		upstreamErr    *drafting.UpstreamError
		emptyErr       *drafting.EmptyResultError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &inputErr), errors.As(err, &schemaErr):
		return http.StatusBadRequest
	case errors.As(err, &entitlementErr):
		return http.StatusForbidden
	case errors.As(err, &upstreamErr), errors.As(err, &emptyErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the response body for err. Internal errors are not
// described to the caller.
func errorBody(err error) ErrorResponse {
	var (
		inputErr       *drafting.InputError
		schemaErr      *schemas.ValidationError
		entitlementErr *drafting.EntitlementError
		upstreamErr    *drafting.UpstreamError
		emptyErr       *drafting.EmptyResultError
	)
	switch {
	case errors.As(err, &inputErr):
		return ErrorResponse{Error: "invalid_request", Message: inputErr.Message, Fields: inputErr.Fields}
	case errors.As(err, &schemaErr):
		return ErrorResponse{Error: "invalid_request", Message: "request does not match schema", Fields: schemaErr.Errors}
	case errors.As(err, &entitlementErr):
		return ErrorResponse{Error: "forbidden", Message: entitlementErr.Message}
	case errors.As(err, &upstreamErr):
		return ErrorResponse{Error: "upstream_error", Message: "reply generation failed", UpstreamStatus: upstreamErr.Status}
	case errors.As(err, &emptyErr):
		return ErrorResponse{Error: "upstream_error", Message: "reply generation returned no usable text"}
	default:
		return ErrorResponse{Error: "internal_error", Message: "internal server error"}
	}
}
