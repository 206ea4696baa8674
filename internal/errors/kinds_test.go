package errors

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
)

func TestFatalError(t *testing.T) {
	inner := fmt.Errorf("bad ratio")
	err := fmt.Errorf("startup: %w", Fatal("parse ratio", inner))

	if !IsFatal(err) {
		t.Fatal("IsFatal should see through wrapping")
	}
	if !errors.Is(err, inner) {
		t.Error("FatalError should unwrap to its cause")
	}
	if IsFatal(inner) {
		t.Error("plain error reported as fatal")
	}
	if got := Fatalf("unsupported transport %q", "udp").Error(); got != `unsupported transport "udp"` {
		t.Errorf("Fatalf message = %q", got)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SessionKind
	}{
		{"eof", io.EOF, KindClosed},
		{"closed conn", net.ErrClosed, KindClosed},
		{"deadline", os.ErrDeadlineExceeded, KindTimeout},
		{"net timeout", timeoutErr{}, KindTimeout},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, KindReset},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindRefused},
		{"other", fmt.Errorf("weird"), KindIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError(t *testing.T) {
	err := NewSessionError("upstream", "read", os.ErrDeadlineExceeded)
	if err.Kind != KindTimeout {
		t.Fatalf("kind = %q, want timeout", err.Kind)
	}
	if !IsTimeout(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsTimeout should match wrapped session timeout")
	}
	if IsTimeout(NewSessionError("client", "read", io.EOF)) {
		t.Error("EOF is not a timeout")
	}
	if err.Error() != "upstream read timeout: "+os.ErrDeadlineExceeded.Error() {
		t.Errorf("Error() = %q", err.Error())
	}
}
