package api

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindNetwork means no response was received.
	KindNetwork
	// KindAuth is a 401 from the backend.
	KindAuth
	// KindValidation is any other 4xx; Message carries the server text.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

const (
	networkMessage = "Network error. Please check your connection."
	authMessage    = "Session expired. Please log in again."
	unknownMessage = "Something went wrong. Please try again."
)

// Error is returned by every remote call that does not succeed.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s failure (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s failure (status %d)", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s failure", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that did not come from this package are KindUnknown.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

func IsAuth(err error) bool       { return err != nil && KindOf(err) == KindAuth }
func IsNetwork(err error) bool    { return err != nil && KindOf(err) == KindNetwork }
func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

// UserMessage is the text shown to the user for err.
func UserMessage(err error) string {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return unknownMessage
	}
	switch apiErr.Kind {
	case KindNetwork:
		return networkMessage
	case KindAuth:
		return authMessage
	case KindValidation:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.Status)
	default:
		return unknownMessage
	}
}

func statusError(status int, message string) *Error {
	e := &Error{Status: status, Message: message}
	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuth
	case status >= 400 && status < 500:
		e.Kind = KindValidation
	default:
		e.Kind = KindUnknown
	}
	return e
}
