package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Sentinel errors
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotModified        = errors.New("not modified")
	ErrInvalidRange       = errors.New("invalid range")
	ErrIsDirectory        = errors.New("entry is a directory")
	ErrEmptyPath          = errors.New("empty path")
)

// PathError wraps an error with the logical path it occurred on.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether an error was caused by the client or caller
// going away. Such errors are swallowed by the serving path: there is no
// peer left to receive a response.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
