// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package harvest

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig aborts a run before any file is touched.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoInputFiles means no input file matched the field and year range.
	ErrNoInputFiles = errors.New("no input files")
)

// IOError is a read or write failure during one file's pass. Err already
// names the file it concerns.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsIOError reports whether err is or wraps an *IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
