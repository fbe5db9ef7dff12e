package error

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/peak/s5nav/storage"
)

// Error is the type that implements error interface.
type Error struct {
	// Op is the operation being performed (cp, mv, rm, etc.)
	Op string
	// Src is the source argument
	Src *storage.Ref
	// Dst is the destination argument
	Dst *storage.Ref
	// The underlying error if any
	Err error
}

// FullCommand returns the command string that occurred at.
func (e *Error) FullCommand() string {
	parts := []string{e.Op}
	if e.Src != nil {
		parts = append(parts, e.Src.String())
	}
	if e.Dst != nil {
		parts = append(parts, e.Dst.String())
	}
	return strings.Join(parts, " ")
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Err.Error()
}

// Unwrap unwraps the error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsCancelation reports whether if given error is a cancelation error.
func IsCancelation(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return true
	}

	if storage.IsCancelationError(err) {
		return true
	}

	merr, ok := err.(*multierror.Error)
	if !ok {
		return false
	}

	for _, err := range merr.Errors {
		if IsCancelation(err) {
			return true
		}
	}

	return false
}

var (
	// ErrObjectExists indicates a specified object already exists and the
	// user chose to keep it.
	ErrObjectExists = fmt.Errorf("object already exists")

	// ErrObjectSkipped indicates the object was skipped by an earlier
	// "skip all" decision.
	ErrObjectSkipped = fmt.Errorf("object skipped")
)

// IsWarning checks if given error is either ErrObjectExists or
// ErrObjectSkipped.
func IsWarning(err error) bool {
	switch {
	case errors.Is(err, ErrObjectExists), errors.Is(err, ErrObjectSkipped):
		return true
	}

	return false
}
