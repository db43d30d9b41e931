package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAPIError_StatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{0, ErrCodeBackendAPI, true},
		{http.StatusUnauthorized, ErrCodeAuthentication, false},
		{http.StatusForbidden, ErrCodeAuthorization, false},
		{http.StatusNotFound, ErrCodeNotFound, false},
		{http.StatusTooManyRequests, ErrCodeRateLimit, true},
		{http.StatusBadRequest, ErrCodeValidationFailed, false},
		{http.StatusBadGateway, ErrCodeBackendAPI, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewAPIError("/api/upload", tt.status, "", errors.New("cause"))
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestNewAPIError_ServerMessageIsVerbatim(t *testing.T) {
	err := NewAPIError("/api/rooms/r1", http.StatusForbidden, "only the owner may delete this room", nil)
	assert.Equal(t, "only the owner may delete this room", GetUserMessage(err))
}

func TestNewAttachmentTooLargeError(t *testing.T) {
	err := NewAttachmentTooLargeError("notes.pdf", 11<<20, 10<<20)

	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Equal(t, "notes.pdf is 11 MiB; attachments are limited to 10 MiB", err.UserMessage)
}

func TestHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatusCode(NewValidationError("text", "", "empty")))
	assert.Equal(t, http.StatusUnauthorized, HTTPStatusCode(NewAuthError("missing token")))
	assert.Equal(t, http.StatusForbidden, HTTPStatusCode(NewForbiddenError("delete room")))
	assert.Equal(t, http.StatusNotFound, HTTPStatusCode(NewNotFoundError("room", "r1")))
	assert.Equal(t, http.StatusTooManyRequests, HTTPStatusCode(NewRateLimitError(1, 5)))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatusCode(NewDatabaseError("insert", errors.New("locked"))))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusCode(errors.New("plain")))
}

func TestToHTTPResponse(t *testing.T) {
	resp := ToHTTPResponse(NewNotFoundError("room", "r1"), "req_1")

	assert.Equal(t, "room not found", resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Code)
	assert.Equal(t, "req_1", resp.RequestID)
}
