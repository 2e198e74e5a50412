// Package domain defines the core domain models for the mm client.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DomainError represents a client error with a structured error code.
//
// Codes follow the format MM-{AREA}-{NNNN}. The numeric part mirrors the
// closest HTTP status so that logs stay readable without a lookup table.
type DomainError struct {
	Code    string // Error code (e.g., "MM-AUTH-4010")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support. Two DomainErrors match when their
// codes match, regardless of message, details or cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// WithStatus returns a copy of the error that records an HTTP status code.
// The status can be recovered with StatusCode.
func (e *DomainError) WithStatus(status int) *DomainError {
	return e.WithDetails(statusPrefix + strconv.Itoa(status))
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

const statusPrefix = "status "

// StatusCode returns the HTTP status recorded by WithStatus, or 0.
func StatusCode(err error) int {
	var de *DomainError
	if !errors.As(err, &de) {
		return 0
	}
	if !strings.HasPrefix(de.Details, statusPrefix) {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimPrefix(de.Details, statusPrefix))
	if convErr != nil {
		return 0
	}
	return code
}

// ============================================================================
// Authentication Errors (AUTH)
// ============================================================================

var (
	// ErrInvalidCredentials indicates the backend explicitly rejected the
	// credentials or the bearer token. The form stays editable; no retry.
	ErrInvalidCredentials = NewDomainError("MM-AUTH-4010", "invalid credentials")

	// ErrLoginInFlight indicates a login was attempted while another one
	// had not resolved yet.
	ErrLoginInFlight = NewDomainError("MM-AUTH-4090", "login already in progress")

	// ErrRateLimited indicates login attempts arrived faster than allowed.
	ErrRateLimited = NewDomainError("MM-AUTH-4290", "too many login attempts")
)

// ============================================================================
// Session Errors (SESS)
// ============================================================================

var (
	// ErrSessionNotFound indicates no session is stored.
	ErrSessionNotFound = NewDomainError("MM-SESS-4040", "no active session")

	// ErrSessionExpired indicates the stored session is past its expiry.
	ErrSessionExpired = NewDomainError("MM-SESS-4041", "session expired")
)

// ============================================================================
// Transport and Server Errors (NET, SYS)
// ============================================================================

var (
	// ErrTransportFailure indicates no response reached the client
	// (network down, timeout, DNS). The user may retry manually.
	ErrTransportFailure = NewDomainError("MM-NET-5030", "backend unreachable")

	// ErrServerFailure indicates the backend answered with an unexpected
	// status or an unreadable body.
	ErrServerFailure = NewDomainError("MM-SYS-5020", "unexpected backend response")

	// ErrStorageError indicates the local session storage failed.
	ErrStorageError = NewDomainError("MM-SYS-5001", "storage error")
)

// ============================================================================
// Presence Errors (PRES)
// ============================================================================

var (
	// ErrMalformedPresenceMessage indicates an inbound frame could not be
	// parsed as a presence event. Never surfaced to the user.
	ErrMalformedPresenceMessage = NewDomainError("MM-PRES-4000", "malformed presence message")

	// ErrPresenceConnectionLost indicates the presence socket closed
	// without a local teardown.
	ErrPresenceConnectionLost = NewDomainError("MM-PRES-5030", "presence connection lost")

	// ErrPresenceNotOpen indicates an operation that needs an open
	// presence connection was attempted in another state.
	ErrPresenceNotOpen = NewDomainError("MM-PRES-4090", "presence connection not open")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("MM-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("MM-ARG-1002", "missing required argument")
)
