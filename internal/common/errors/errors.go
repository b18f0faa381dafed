// Package errors provides the standardized error taxonomy shared by the HTTP
// surface and the workflow workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeAuthorization  ErrorCode = "AUTHORIZATION_ERROR"
	ErrCodeUpstreamData   ErrorCode = "UPSTREAM_DATA_ERROR"
	ErrCodeConfigPersist  ErrorCode = "CONFIG_PERSIST_FAILED"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// WithMetadata returns the error with an extra metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// NewValidationError creates a non-retryable validation error.
func NewValidationError(message, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthenticationError is returned for a missing or unverifiable credential.
func NewAuthenticationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthentication,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthorizationError is returned when a verified caller lacks operator privilege.
func NewAuthorizationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthorization,
		Message:   "Insufficient privileges",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUpstreamDataError wraps a storage or data-provider failure.
func NewUpstreamDataError(source string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstreamData,
		Message:   fmt.Sprintf("Upstream data source '%s' failed", source),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigPersistError is returned when a validated scoring config cannot be saved.
func NewConfigPersistError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeConfigPersist,
		Message:   "Failed to persist scoring configuration",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewRateLimitedError(key string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "Too many requests",
		Details:   fmt.Sprintf("key: %s", key),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewNotFoundError(resource, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resource),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}

// HTTPStatus maps an error code to the status returned by the HTTP surface.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUpstreamData:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicBody is the response payload for an error. Details of internal and
// upstream failures stay in the logs.
func PublicBody(e *StandardError) map[string]interface{} {
	body := map[string]interface{}{
		"code":    string(e.Code),
		"message": e.Message,
	}
	switch e.Code {
	case ErrCodeValidation, ErrCodeNotFound:
		if e.Details != "" {
			body["details"] = e.Details
		}
		if len(e.Metadata) > 0 {
			body["metadata"] = e.Metadata
		}
	}
	return body
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamData, ErrCodeConfigPersist:
		return 3
	case ErrCodeRateLimited:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}
	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// GetErrorCategory groups codes for log aggregation.
func GetErrorCategory(code ErrorCode) string {
	switch {
	case code == ErrCodeValidation:
		return "validation"
	case code == ErrCodeAuthentication || code == ErrCodeAuthorization:
		return "auth"
	case code == ErrCodeUpstreamData || code == ErrCodeConfigPersist:
		return "upstream"
	case strings.HasPrefix(string(code), "RATE"):
		return "throttle"
	default:
		return "internal"
	}
}
