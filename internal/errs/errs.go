// Package errs holds the user-facing error type shared by every newsagent
// command.
package errs

import (
	"errors"
	"fmt"
)

// UserErrorf is a user-facing error.
// It exists mostly to keep linters quiet about capitalized error strings.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a short, actionable reason.
//
// Err carries the technical details. When Err is nil, Error() falls back to
// Reason.
type Error struct {
	Err    error
	Reason string
}

// Wrap creates an Error with the given underlying error and reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with the given underlying error and a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

// MissingCredential reports an empty credential variable along with where to
// get one.
func MissingCredential(name, docsURL string) Error {
	reason := fmt.Sprintf("%s required; export it or set it in the settings file (newsagent config).", name)
	if docsURL == "" {
		return Error{Reason: reason, Err: UserErrorf("%s is empty", name)}
	}
	return Error{Reason: reason, Err: UserErrorf("You can grab one at %s", docsURL)}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

// Reason extracts the reason of the outermost Error in err's chain, if any.
func Reason(err error) (string, bool) {
	var e Error
	if !errors.As(err, &e) {
		return "", false
	}
	return e.Reason, true
}
