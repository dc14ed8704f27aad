package common

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// decodeLimit caps request bodies read by DecodeJSON.
const decodeLimit = 1 << 20

// ErrorBody is the payload under "error" in every failure response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// JSON encodes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError writes {"error": {...}}.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, struct {
		Error ErrorBody `json:"error"`
	}{ErrorBody{Code: code, Message: message, Details: details}})
}

// Data writes {"data": v}.
func Data(w http.ResponseWriter, status int, v any) {
	JSON(w, status, struct {
		Data any `json:"data"`
	}{v})
}

var errTrailingData = errors.New("trailing data after json body")

// DecodeJSON reads exactly one JSON document from the request into dst.
// Unknown fields are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, decodeLimit))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	switch {
	case errors.Is(err, io.EOF):
		return NewAppError("BAD_REQUEST", "request body is empty", http.StatusBadRequest, err)
	case err != nil:
		return NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, err)
	case dec.More():
		return NewAppError("BAD_REQUEST", "invalid payload", http.StatusBadRequest, errTrailingData)
	}
	return nil
}
