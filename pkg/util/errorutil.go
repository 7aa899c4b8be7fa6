package util

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes shared by the lifecycle engine and its adapters.
const (
	CodeNotFound             = "NOT_FOUND"
	CodeUpstreamUnavailable  = "UPSTREAM_UNAVAILABLE"
	CodePartialFailure       = "PARTIAL_FAILURE"
	CodeConfigurationMissing = "CONFIGURATION_MISSING"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeForbidden            = "FORBIDDEN"
	CodeInternal             = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

// NewUpstreamUnavailable reports a failed fetch, upload, chat or store call.
func NewUpstreamUnavailable(operation string, err error) error {
	return &DomainError{
		Code:       CodeUpstreamUnavailable,
		Message:    fmt.Sprintf("%s failed", operation),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"operation": operation},
		Err:        err,
	}
}

// NewPartialFailure describes a batch that completed with some failed items.
func NewPartialFailure(operation string, succeeded, failed int) error {
	return &DomainError{
		Code:       CodePartialFailure,
		Message:    fmt.Sprintf("%s completed with %d of %d items failing", operation, failed, succeeded+failed),
		HTTPStatus: http.StatusMultiStatus,
		Details:    map[string]any{"succeeded": succeeded, "failed": failed},
	}
}

// NewConfigurationMissing reports an absent destination such as an announce channel.
func NewConfigurationMissing(key string) error {
	return &DomainError{
		Code:       CodeConfigurationMissing,
		Message:    fmt.Sprintf("%s is not configured", key),
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"key": key},
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound is shorthand for HasCode(err, CodeNotFound).
func IsNotFound(err error) bool {
	return HasCode(err, CodeNotFound)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows) {
		return NewNotFound("resource", nil).(*DomainError)
	}
	return NewInternalError(err).(*DomainError)
}
