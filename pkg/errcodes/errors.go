package errcodes

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	CodeNotFound      = "not_found"
	CodeInvalidRecord = "invalid_record"
	CodeMissingConfig = "missing_config"
)

// Error is a typed pipeline error. Two errors are considered equal when their
// code and message match, so callers can use errors.Is against a freshly built
// value (e.g. errors.Is(err, errcodes.NotFound("Comic"))).
type Error struct {
	Message string
	Code    string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Message == err.Message &&
		te.Code == err.Code
}

// NotFound returns an error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		resource + " not found.",
		CodeNotFound,
	}
}

// InvalidRecord is returned when an input record fails upstream validation.
func InvalidRecord(msg string) error {
	return &Error{
		fmt.Sprintf("Invalid record: %s", msg),
		CodeInvalidRecord,
	}
}

// MissingConfig is returned when a required configuration value is not set.
func MissingConfig(envName, fileKey string) error {
	return &Error{
		fmt.Sprintf("missing required config: set %s or %s", envName, fileKey),
		CodeMissingConfig,
	}
}

// Code returns the code of a typed error, or an empty string for any other
// error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
