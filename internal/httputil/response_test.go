package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/tracing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]string{"id": "abc"}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"abc"}`, rec.Body.String())
}

func TestWriteError(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil)
	r = r.WithContext(tracing.WithRequestID(r.Context(), "req_1"))
	rec := httptest.NewRecorder()

	WriteError(rec, r, apperrors.NewNotFoundError("Room", "x"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Room not found", body.Error)
	assert.Equal(t, apperrors.ErrCodeNotFound, body.Code)
	assert.Equal(t, "req_1", body.RequestID)
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Algebra"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, 1024, &out))
	assert.Equal(t, "Algebra", out.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), r, 1024, &out)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"`+strings.Repeat("a", 100)+`"}`))
	err = DecodeJSON(httptest.NewRecorder(), r, 16, &out)
	assert.Error(t, err)
}
