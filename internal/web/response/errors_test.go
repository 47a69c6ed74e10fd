package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name    string
		write   func(http.ResponseWriter, *http.Request)
		status  int
		code    string
		message string
	}{
		{
			name:    "not found default message",
			write:   func(w http.ResponseWriter, r *http.Request) { NotFound(w, r, "") },
			status:  http.StatusNotFound,
			code:    CodeNotFound,
			message: "The requested resource was not found",
		},
		{
			name:    "bad request",
			write:   func(w http.ResponseWriter, r *http.Request) { BadRequest(w, r, "missing key") },
			status:  http.StatusBadRequest,
			code:    CodeBadRequest,
			message: "missing key",
		},
		{
			name:    "unauthorized",
			write:   func(w http.ResponseWriter, r *http.Request) { Unauthorized(w, r, "") },
			status:  http.StatusUnauthorized,
			code:    CodeUnauthorized,
			message: "Unauthorized",
		},
		{
			name:    "forbidden",
			write:   func(w http.ResponseWriter, r *http.Request) { Forbidden(w, r, "no") },
			status:  http.StatusForbidden,
			code:    CodeForbidden,
			message: "no",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/about/team", nil)
			tt.write(w, r)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

			resp := decode(t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, "/about/team", resp.Path)
		})
	}
}

func TestUnauthorizedSetsChallenge(t *testing.T) {
	w := httptest.NewRecorder()
	Unauthorized(w, httptest.NewRequest(http.MethodGet, "/", nil), "")
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestInternalServerErrorDetails(t *testing.T) {
	boom := errors.New("redis: connection refused")

	w := httptest.NewRecorder()
	InternalServerError(w, httptest.NewRequest(http.MethodGet, "/", nil), boom, false)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Empty(t, decode(t, w).Error.Details)

	w = httptest.NewRecorder()
	InternalServerError(w, httptest.NewRequest(http.MethodGet, "/", nil), boom, true)
	assert.Equal(t, boom.Error(), decode(t, w).Error.Details["error"])
}

func TestErrorWithoutRequest(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, nil, http.StatusTeapot, "TEAPOT", "short and stout")
	resp := decode(t, w)
	assert.Empty(t, resp.Path)
	assert.Equal(t, http.StatusTeapot, resp.Status)
}
