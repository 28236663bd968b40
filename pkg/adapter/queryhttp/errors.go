package queryhttp

import (
	"errors"
	"fmt"
)

// ErrServerDown is returned by the adapter when the listening task ends
// while the node is still supposed to be serving.
var ErrServerDown = errors.New("query server stopped unexpectedly")

// ServeErrorKind classifies a ServeError.
type ServeErrorKind int

const (
	// BindFailure means the listening socket could not be bound: the port is
	// in use, the process lacks permission, or the address is unavailable.
	BindFailure ServeErrorKind = iota + 1
)

func (k ServeErrorKind) String() string {
	switch k {
	case BindFailure:
		return "bind failure"
	default:
		return fmt.Sprintf("ServeErrorKind(%d)", int(k))
	}
}

// ServeError is returned by Server.Serve when the server cannot start.
//
// It wraps the operating system error, so callers can match specific causes
// with errors.Is (for example syscall.EADDRINUSE).
type ServeError struct {
	Kind ServeErrorKind
	Port uint16
	Err  error
}

func (e *ServeError) Error() string {
	return fmt.Sprintf("%s on 0.0.0.0:%d: %v", e.Kind, e.Port, e.Err)
}

func (e *ServeError) Unwrap() error {
	return e.Err
}

// IsBindFailure reports whether err is, or wraps, a bind failure.
func IsBindFailure(err error) bool {
	var serveErr *ServeError
	return errors.As(err, &serveErr) && serveErr.Kind == BindFailure
}
