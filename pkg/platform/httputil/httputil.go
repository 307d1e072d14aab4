// Package httputil renders JSON payloads and coded domain errors.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "complyhub/pkg/domain-errors"
)

// ErrorResponse is the wire shape of every error answer.
type ErrorResponse struct {
	Error       string   `json:"error"`
	Description string   `json:"error_description,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Blocking    []string `json:"blocking_modules,omitempty"`
}

// Blocker is implemented by errors that name the resources preventing an
// operation, so clients can remediate without parsing messages.
type Blocker interface {
	BlockingModules() []string
}

// Kinded is implemented by errors with a finer-grained discriminator than Code.
type Kinded interface {
	ErrorKind() string
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto a status code. Internal errors never leak their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code)}
	if code != dErrors.CodeInternal {
		resp.Description = dErrors.MessageOf(err)
	}

	var k Kinded
	if errors.As(err, &k) {
		resp.Kind = k.ErrorKind()
	}
	var b Blocker
	if errors.As(err, &b) {
		resp.Blocking = b.BlockingModules()
	}

	WriteJSON(w, StatusFor(code), resp)
}

// StatusFor maps a domain code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeValidation:
		return http.StatusBadRequest
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
