// Package errors provides structured, HTTP-aware application errors used at
// service boundaries (webhook receivers, the query/command API).
package errors

import (
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError and determines its HTTP status code.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"

	// Domain-specific types from the §7 error taxonomy. These never cross
	// the HTTP boundary directly but share the AppError shape so the BDI
	// loop, executor, and escalation feed can reuse one error type.
	ErrorTypeTransientTool ErrorType = "transient_tool"
	ErrorTypePlanning      ErrorType = "planning_failure"
	ErrorTypeExecution     ErrorType = "execution_failure"
	ErrorTypeCompensation  ErrorType = "compensation_failure"
	ErrorTypeLLM           ErrorType = "llm_failure"
	ErrorTypeFatal         ErrorType = "fatal"
)

var statusCodes = map[ErrorType]int{
	ErrorTypeValidation:    http.StatusBadRequest,
	ErrorTypeAuth:          http.StatusUnauthorized,
	ErrorTypeNotFound:      http.StatusNotFound,
	ErrorTypeConflict:      http.StatusConflict,
	ErrorTypeTimeout:       http.StatusRequestTimeout,
	ErrorTypeRateLimit:     http.StatusTooManyRequests,
	ErrorTypeDatabase:      http.StatusInternalServerError,
	ErrorTypeNetwork:       http.StatusInternalServerError,
	ErrorTypeInternal:      http.StatusInternalServerError,
	ErrorTypeTransientTool: http.StatusInternalServerError,
	ErrorTypePlanning:      http.StatusInternalServerError,
	ErrorTypeExecution:     http.StatusInternalServerError,
	ErrorTypeCompensation:  http.StatusInternalServerError,
	ErrorTypeLLM:           http.StatusInternalServerError,
	ErrorTypeFatal:         http.StatusInternalServerError,
}

// AppError is a structured error carrying an HTTP status and optional
// free-form details.
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusCodes[t],
	}
}

func Newf(t ErrorType, format string, args ...any) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	err := New(t, message)
	err.Cause = cause
	return err
}

func Wrapf(cause error, t ErrorType, format string, args ...any) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...any) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// Predefined constructors mirroring the common cases at the webhook and
// query-API boundary.

func Validation(message string) *AppError { return New(ErrorTypeValidation, message) }

func ValidationFields(fields map[string]string) *AppError {
	err := New(ErrorTypeValidation, "request validation failed")
	for field, reason := range fields {
		if err.Details != "" {
			err.Details += "; "
		}
		err.Details += fmt.Sprintf("%s: %s", field, reason)
	}
	return err
}

func NotFound(resource string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

func Timeout(operation string) *AppError {
	return Newf(ErrorTypeTimeout, "%s timed out", operation)
}

// TransientTool classifies a tool-invocation failure per the executor's
// retry/backtrack policy (§7 TransientToolError).
func TransientTool(cause error, action string) *AppError {
	return Wrapf(cause, ErrorTypeTransientTool, "tool invocation failed: %s", action)
}

// Fatal marks an unrecoverable startup/runtime condition (DB open failure,
// unbindable port) that should terminate the process with a non-zero exit
// code (see cmd/bdi-agent).
func Fatal(cause error, message string) *AppError {
	return Wrap(cause, ErrorTypeFatal, message)
}
