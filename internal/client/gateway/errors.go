package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTargets is returned when a resource resolves to no candidate URL.
	ErrNoTargets = errors.New("no request targets")
	// ErrUnknownEndpoint is returned for a logical endpoint name with no path.
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

// User-facing messages.
const (
	MessageNetwork        = "We couldn't reach Aserras. Check your connection and try again."
	MessageServer         = "Aserras is having trouble right now. Please try again shortly."
	MessageSessionExpired = "Your session has expired. Please sign in again."
	MessageGeneric        = "Something went wrong. Please try again."
)

// NetworkError is a transport-level failure of every candidate URL.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error requesting %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// UserMessage is the text shown to the user.
func (e *NetworkError) UserMessage() string { return MessageNetwork }

// SessionExpiredError reports a missing token (Status 0) or a 401/403 answer.
type SessionExpiredError struct {
	Status int
	URL    string
}

func (e *SessionExpiredError) Error() string {
	if e.Status == 0 {
		return "session expired: no token available"
	}
	return fmt.Sprintf("session expired: %s answered %d", e.URL, e.Status)
}

func (e *SessionExpiredError) UserMessage() string { return MessageSessionExpired }

// ServerError is an HTTP 5xx answer.
type ServerError struct {
	Status  int
	URL     string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d from %s: %s", e.Status, e.URL, e.Message)
}

func (e *ServerError) UserMessage() string { return MessageServer }

// ClientError is any other non-2xx answer; Message comes from the server when it sent one.
type ClientError struct {
	Status  int
	URL     string
	Message string
	Payload Payload
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("request to %s failed with %d: %s", e.URL, e.Status, e.Message)
}

func (e *ClientError) UserMessage() string { return e.Message }

// UserMessage returns the text a view should show for err.
func UserMessage(err error) string {
	var msg interface{ UserMessage() string }
	if errors.As(err, &msg) {
		if text := msg.UserMessage(); text != "" {
			return text
		}
	}
	return MessageGeneric
}

// IsSessionExpired reports whether err is a *SessionExpiredError.
func IsSessionExpired(err error) bool {
	var target *SessionExpiredError
	return errors.As(err, &target)
}
