// Package domainerrors defines the coded error vocabulary shared by services
// and the HTTP transport. Stores return infrastructure sentinels
// (pkg/platform/sentinel); services translate them into coded errors here so
// handlers never inspect raw storage failures.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class. Generic codes cover transport-level
// classification; the upper-case codes are domain outcomes surfaced verbatim
// to API clients.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"

	CodeNameExists     Code = "NAME_EXISTS"
	CodeRoundExists    Code = "ROUND_ALREADY_EXISTS"
	CodeNoActivePrompt Code = "NO_ACTIVE_PROMPT"
	CodeNoCurrentRound Code = "NO_CURRENT_ROUND"
	CodeCommitConflict Code = "COMMIT_CONFLICT"
)

// Error carries a code, a human-readable message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds a coded error without a cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// chain for errors.Is/As.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from an error chain, defaulting to CodeInternal
// for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the message from a coded error, or "" for uncoded ones.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps an error code to the HTTP status the transport layer
// should respond with.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeNoActivePrompt, CodeNoCurrentRound:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeNameExists, CodeRoundExists, CodeCommitConflict, CodeInvariantViolation:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
