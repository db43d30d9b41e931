package errors

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewAttachmentTooLargeError reports an attachment over the size ceiling.
func NewAttachmentTooLargeError(filename string, size, limit int64) *AppError {
	return New(ErrCodeValidationFailed, fmt.Sprintf("attachment is %d bytes, limit is %d", size, limit)).
		WithContext("field", "attachment").
		WithContext("file_name", filename).
		WithContext("size_bytes", size).
		WithUserMessage(fmt.Sprintf("%s is %s; attachments are limited to %s",
			filename, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit))))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewAPIError creates an error for a failed backend call. serverMessage is the
// backend's own explanation and is surfaced verbatim to the user when present.
func NewAPIError(endpoint string, statusCode int, serverMessage string, err error) *AppError {
	code := ErrCodeBackendAPI
	switch statusCode {
	case http.StatusUnauthorized:
		code = ErrCodeAuthentication
	case http.StatusForbidden:
		code = ErrCodeAuthorization
	case http.StatusNotFound:
		code = ErrCodeNotFound
	case http.StatusTooManyRequests:
		code = ErrCodeRateLimit
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		code = ErrCodeValidationFailed
	}

	message := fmt.Sprintf("backend call to %s failed", endpoint)
	if statusCode > 0 {
		message = fmt.Sprintf("backend call to %s failed with status %d", endpoint, statusCode)
	}

	appErr := Wrap(err, code, message).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	// Transport failures (no status) and 5xx/408/429 are worth retrying.
	appErr.Retryable = statusCode == 0 || statusCode >= 500 || statusCode == 429 || statusCode == 408

	if serverMessage != "" {
		appErr.UserMessage = serverMessage
	} else if statusCode == 0 {
		appErr.UserMessage = "Could not reach the server"
	} else {
		appErr.UserMessage = fmt.Sprintf("Request failed (%d)", statusCode)
	}
	return appErr
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("You need to sign in first")
}

// NewForbiddenError creates an authorization error for an owner-only action.
func NewForbiddenError(action string) *AppError {
	return New(ErrCodeAuthorization, fmt.Sprintf("%s not permitted", action)).
		WithContext("action", action).
		WithUserMessage("Only the room owner can do that")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit float64, burst int) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit_per_sec", limit).
		WithContext("burst", burst).
		WithUserMessage("Too many requests, please try again later")
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeInvalidConfig:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeUploadFailed, ErrCodeLogWriteFailed, ErrCodeBackendAPI, ErrCodeSubscription:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed requests. Clients read
// the top-level error field as the human-readable failure reason.
type HTTPErrorResponse struct {
	Error     string    `json:"error"`
	Code      ErrorCode `json:"code"`
	RequestID string    `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	return HTTPErrorResponse{
		Error:     GetUserMessage(err),
		Code:      GetCode(err),
		RequestID: requestID,
	}
}
