/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, a user-friendly message, and an HTTP status code for unified
error reporting. Domain packages declare their sentinel errors with Define so that From can
translate any wrapped failure into a CustomError without the domain knowing about HTTP.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"holidaze/internal/pkg/logx"
)

// CustomError is the custom error structure used throughout the application.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// Cause is the underlying error; it is logged but never shown to users.
	Cause error
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, HTTP status, and message.
func (e CustomError) Error() string {
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e CustomError) Unwrap() error {
	return e.Cause
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter supplies printf-style arguments for message templates.
// If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	hasPlaceholder := strings.Contains(customErr.Message, "%")

	switch {
	case code == ErrUnknown && len(details) > 0:
		if originalErr, ok := details[0].(error); ok {
			customErr.Cause = originalErr
			logx.Error(originalErr, "Handling ErrUnknown with underlying error")
		}
	case hasPlaceholder && len(details) > 0:
		customErr.Message = fmt.Sprintf(customErr.Message, details...)
	case hasPlaceholder:
		customErr.Message = fmt.Sprintf(customErr.Message, "no further details")
	case len(details) > 0:
		logx.Warn(
			"Details provided for error, but message template has no formatting placeholders. Details ignored.",
			"code", code,
		)
	}

	return &customErr
}

// Wrap builds the CustomError for code and records cause as its underlying error.
func Wrap(code int, cause error, details ...any) *CustomError {
	customErr := NewError(code, details...)
	customErr.Cause = cause
	return customErr
}

// Sentinel is a comparable domain error that carries an application error code.
type Sentinel struct {
	code int
	text string
}

// Define declares a domain sentinel error mapped to code.
func Define(code int, text string) *Sentinel {
	return &Sentinel{code: code, text: text}
}

func (s *Sentinel) Error() string { return s.text }

// ErrorCode returns the application error code of the sentinel.
func (s *Sentinel) ErrorCode() int { return s.code }

// coder is implemented by errors that know their application error code.
type coder interface {
	ErrorCode() int
}

// detailer is implemented by errors that carry a user-presentable detail message.
type detailer interface {
	ErrorDetail() string
}

// From translates any error into a *CustomError. Existing CustomErrors pass through,
// coded errors anywhere in the chain are mapped to their code, everything else is ErrUnknown.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}

	var customErr *CustomError
	if errors.As(err, &customErr) {
		return customErr
	}

	var c coder
	if !errors.As(err, &c) {
		return NewError(ErrUnknown, err)
	}

	code := c.ErrorCode()
	var detail []any
	var d detailer
	if errors.As(err, &d) && strings.Contains(errorMap[code].Message, "%") {
		detail = append(detail, d.ErrorDetail())
	}
	return Wrap(code, err, detail...)
}

// CodeOf returns the application error code of err, or 0 when err is nil.
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	return From(err).Code
}

// IsCoded reports whether err, or an error it wraps, carries an application error code.
func IsCoded(err error) bool {
	var customErr *CustomError
	var c coder
	return errors.As(err, &customErr) || errors.As(err, &c)
}
