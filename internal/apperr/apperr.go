// Package apperr carries caller-visible error codes across the service and transport layers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidField          Code = "INVALID_FIELD"
	CodeBadDate               Code = "BAD_DATE"
	CodeBadTimeWindow         Code = "BAD_TIME_WINDOW"
	CodePostalNotFound        Code = "POSTAL_NOT_FOUND"
	CodeNoTechnicianAvailable Code = "NO_TECHNICIAN_AVAILABLE"
	CodeNotFound              Code = "NOT_FOUND"
	CodeSlotConflict          Code = "SLOT_CONFLICT"
	CodeLockTimeout           Code = "LOCK_TIMEOUT"
	CodeInternal              Code = "INTERNAL_ERROR"
)

type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByCode = map[Code]Metadata{
	CodeInvalidField:          {HTTPStatus: http.StatusBadRequest},
	CodeBadDate:               {HTTPStatus: http.StatusBadRequest},
	CodeBadTimeWindow:         {HTTPStatus: http.StatusBadRequest},
	CodePostalNotFound:        {HTTPStatus: http.StatusBadRequest},
	CodeNoTechnicianAvailable: {HTTPStatus: http.StatusNotFound},
	CodeNotFound:              {HTTPStatus: http.StatusNotFound},
	CodeSlotConflict:          {HTTPStatus: http.StatusConflict, Retryable: true},
	CodeLockTimeout:           {HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
	CodeInternal:              {HTTPStatus: http.StatusInternalServerError},
}

type Error struct {
	Code    Code
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func MetadataFor(code Code) Metadata {
	if md, ok := metadataByCode[code]; ok {
		return md
	}
	return metadataByCode[CodeInternal]
}

// CodeOf returns the code carried by err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}

// As converts any error into an *Error. Foreign errors become INTERNAL_ERROR
// with a generic message so storage details do not leak to callers.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternal, "internal error")
}
