// Package errdefs defines the error taxonomy shared by the adapters and workflows.
//
// Every error type matches one sentinel through errors.Is, so callers can branch on the
// kind of failure while errors.As still exposes the structured fields.
package errdefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sentinels for errors.Is.
var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRequestFailed        = errors.New("request failed")
	ErrTimeoutExceeded      = errors.New("timeout exceeded")
	ErrConstraintViolation  = errors.New("constraint violation")
)

// AuthenticationError reports bad credentials, a failed token exchange, or a token the
// server no longer accepts.
type AuthenticationError struct {
	Username string
	Reason   string
	Err      error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed"
	if e.Username != "" {
		msg += " for " + e.Username
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthenticationFailed }

// RequestError is an unexpected HTTP outcome. Context names the operation that issued the
// request ("Create user acme-admin").
type RequestError struct {
	Context    string
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("error %s: %d - %s", e.Context, e.StatusCode, e.Message)
}

func (e *RequestError) Is(target error) bool { return target == ErrRequestFailed }

// TimeoutError is returned when a poll never saw its predicate hold.
type TimeoutError struct {
	Description string
	Attempts    int
	Elapsed     time.Duration
	// Last is the most recent error swallowed while polling, if any.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out waiting for: %s (%d attempts in %s)", e.Description, e.Attempts, e.Elapsed.Round(time.Millisecond))
	if e.Last != nil {
		msg += ": last error: " + e.Last.Error()
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeoutExceeded }

// ConstraintError is a membership rule breach for a single proposed assignment.
type ConstraintError struct {
	Detail string
}

func (e *ConstraintError) Error() string { return "constraint violation: " + e.Detail }

func (e *ConstraintError) Is(target error) bool { return target == ErrConstraintViolation }

// IsAuthentication reports whether err is (or wraps) an authentication failure.
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed)
}

// serverError is the subset of error payloads both services emit.
type serverError struct {
	ErrorMessage string `json:"errorMessage"`
	Error        string `json:"error"`
}

// FromResponse builds a RequestError from a non-success response, preferring the structured
// errorMessage or error field over the raw body. It consumes the body.
func FromResponse(resp *http.Response, context string) *RequestError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return &RequestError{
		Context:    context,
		StatusCode: resp.StatusCode,
		Message:    ServerMessage(body),
	}
}

// ServerMessage extracts the human-readable message from an error payload.
func ServerMessage(body []byte) string {
	var payload serverError
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorMessage != "" {
			return payload.ErrorMessage
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(body))
}
