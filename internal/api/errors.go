package api

import (
	"net/http"
)

// ErrorDetail is the wire shape of one failure.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error is the REST error envelope: {"error": {"kind": ..., "message": ...}}.
// It satisfies huma.StatusError so handlers can return it directly and the
// central error mapper can construct it.
type Error struct {
	Detail ErrorDetail `json:"error"`

	status int
}

// NewError builds an error response with the given HTTP status.
func NewError(status int, kind, message string) *Error {
	return &Error{
		Detail: ErrorDetail{Kind: kind, Message: message},
		status: status,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Detail.Message
}

// GetStatus implements huma.StatusError.
func (e *Error) GetStatus() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}
