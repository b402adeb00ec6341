package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsWrappedSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("matrix: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("row label: %w", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("save in progress: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("rows missing: %w", ErrInvalidData), http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())

		var problem ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
		require.Equal(t, tc.status, problem.Status)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("dial tcp 10.0.0.1:5432: refused"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Empty(t, problem.Detail)
}

type fieldErr map[string]string

func (f fieldErr) Error() string                  { return "row label is required" }
func (f fieldErr) Unwrap() error                  { return ErrValidation }
func (f fieldErr) FieldErrors() map[string]string { return f }

func TestRespondErrorIncludesFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, fmt.Errorf("add row: %w", fieldErr{"label": "required"}))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var problem ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &problem))
	require.Equal(t, map[string]string{"label": "required"}, problem.Errors)
	require.Equal(t, "add row: row label is required", problem.Error())
}
