package errors

import (
	stderrors "errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeLocalStore      ErrorType = "LOCAL_STORE"
	ErrorTypeRemoteHost      ErrorType = "REMOTE_HOST"
	ErrorTypeInvalidResponse ErrorType = "INVALID_RESPONSE"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeValidation      ErrorType = "VALIDATION"
)

// Error is the tagged failure surfaced by the sync engine and the write-back queue.
type Error struct {
	Type    ErrorType `json:"type"`
	Op      string    `json:"op,omitempty"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func LocalStore(op string, err error) *Error {
	return &Error{
		Type:    ErrorTypeLocalStore,
		Op:      op,
		Message: "local store failure",
		Err:     err,
	}
}

func RemoteHost(op string, err error) *Error {
	return &Error{
		Type:    ErrorTypeRemoteHost,
		Op:      op,
		Message: "remote host failure",
		Err:     err,
	}
}

func InvalidResponse(op, message string) *Error {
	return &Error{
		Type:    ErrorTypeInvalidResponse,
		Op:      op,
		Message: message,
	}
}

func NotFound(message string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

func ValidationError(message string) *Error {
	return &Error{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// Is reports whether err carries an *Error of the given type anywhere in its chain.
func Is(err error, t ErrorType) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Type == t
}

// TypeOf returns the type of the first *Error in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !stderrors.As(err, &e) {
		return ""
	}
	return e.Type
}
