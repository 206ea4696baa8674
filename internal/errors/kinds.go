package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// FatalError aborts startup or the whole relay run. main turns it into exit status 1.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError. A nil err yields a FatalError carrying only op.
func Fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}

// Fatalf builds a FatalError from a formatted message.
func Fatalf(format string, args ...interface{}) error {
	return &FatalError{Op: fmt.Sprintf(format, args...)}
}

// IsFatal reports whether err carries a FatalError anywhere in its chain.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// SessionKind classifies a session-local transport failure.
type SessionKind string

const (
	KindTimeout SessionKind = "timeout"
	KindReset   SessionKind = "reset"
	KindRefused SessionKind = "refused"
	KindClosed  SessionKind = "closed"
	KindIO      SessionKind = "io"
)

// SessionError ends one relay session but never the process.
type SessionError struct {
	Kind SessionKind
	Side string // "client" or "upstream"
	Op   string // "read", "write" or "dial"
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Side, e.Op, e.Kind, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError classifies err and wraps it with the side and operation.
func NewSessionError(side, op string, err error) *SessionError {
	return &SessionError{Kind: Classify(err), Side: side, Op: op, Err: err}
}

// IsTimeout reports whether err is a session timeout.
func IsTimeout(err error) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Kind == KindTimeout
	}
	return Classify(err) == KindTimeout
}

// Classify maps a transport error onto a SessionKind.
func Classify(err error) SessionKind {
	if err == nil {
		return KindIO
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return KindClosed
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return KindReset
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindRefused
	}
	return KindIO
}
