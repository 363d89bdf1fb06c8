// Package errors carries failure context through the coordination core:
// construction helpers that stamp the call site, and the classification
// used to choose retry policy and researcher-facing messages.
package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// callsite returns the short file name and line of the caller's caller.
func callsite() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return "[???:0]"
	}
	return fmt.Sprintf("[%s:%d]", filepath.Base(file), line)
}

// New creates an error stamped with the call site.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("%s %s", callsite(), fmt.Sprintf(format, a...))
}

// Wrapf adds call-site context to an existing error, preserving the
// cause for Classify and errors.Is. Returns nil for a nil err.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", callsite(), fmt.Sprintf(format, a...), err)
}
