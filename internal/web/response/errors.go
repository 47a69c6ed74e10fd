// Package response writes the JSON bodies shared by the HTTP handlers,
// middleware and auth layers.
package response

import (
	"encoding/json"
	"net/http"
)

// Error codes
const (
	CodeNotFound         = "NOT_FOUND"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeTooManyRequests  = "TOO_MANY_REQUESTS"
	CodeInternal         = "INTERNAL_SERVER_ERROR"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error  ErrorDetail `json:"error"`
	Status int         `json:"status"`
	Path   string      `json:"path,omitempty"`
}

// ErrorDetail contains detailed error information
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error writes an error response for the request
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ErrorWithDetails(w, r, status, code, message, nil)
}

// ErrorWithDetails writes an error response carrying extra details
func ErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	resp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Status: status,
	}
	if r != nil {
		resp.Path = r.URL.Path
	}
	JSON(w, status, resp)
}

// NotFound writes a 404 Not Found response
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "The requested resource was not found"
	}
	Error(w, r, http.StatusNotFound, CodeNotFound, message)
}

// BadRequest writes a 400 Bad Request response
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "Bad request"
	}
	Error(w, r, http.StatusBadRequest, CodeBadRequest, message)
}

// Unauthorized writes a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "Unauthorized"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="hierroutes"`)
	Error(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden writes a 403 Forbidden response
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	if message == "" {
		message = "Forbidden"
	}
	Error(w, r, http.StatusForbidden, CodeForbidden, message)
}

// InternalServerError writes a 500 response. The error text is only
// included when showDetails is set.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error, showDetails bool) {
	var details map[string]any
	if showDetails && err != nil {
		details = map[string]any{"error": err.Error()}
	}
	ErrorWithDetails(w, r, http.StatusInternalServerError, CodeInternal, "An internal server error occurred", details)
}

// JSON writes v as a JSON body with the given status
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // the status line is already out
}
