package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Error
}

func TestWriteErrorAppError(t *testing.T) {
	base := errors.New("bill INV-1 not found")
	rr := httptest.NewRecorder()
	WriteError(rr, fmt.Errorf("lookup: %w", NotFound(base)))

	require.Equal(t, http.StatusNotFound, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "NOT_FOUND", body.Code)
	require.Equal(t, "bill INV-1 not found", body.Message)
}

func TestWriteErrorHidesPlainErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	body := decodeError(t, rr)
	require.Equal(t, "INTERNAL", body.Code)
	require.Equal(t, "internal error", body.Message)
}

func TestDecodeJSONRejectsUnknownAndTrailing(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}
	cases := map[string]string{
		"empty":    "",
		"unknown":  `{"name":"a","extra":1}`,
		"trailing": `{"name":"a"}{"name":"b"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
			err := DecodeJSON(r, &dst)
			require.Error(t, err)
			var appErr *AppError
			require.ErrorAs(t, err, &appErr)
			require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
		})
	}
}
