package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/tracing"
)

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if v == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(v)
}

// WriteError maps err to its HTTP status and writes the standard
// {"error": ...} body, tagged with the request id.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	_ = WriteJSON(w, apperrors.HTTPStatusCode(err), resp)
}

// DecodeJSON reads a JSON body of at most maxBytes into v, rejecting unknown
// fields.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("Request body is not valid JSON")
	}
	return nil
}
