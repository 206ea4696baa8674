package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps upstream dial/listen errors with user-friendly context
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to reach %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "Check that the upstream service is running and the relay can route to it",
		Try:     fmt.Sprintf("fuzzrelay relay --remote-host %s --remote-port %d --mode passthrough", host, port),
		Err:     err,
	}
}

// WrapListenError wraps a failure to bind the relay listener
func WrapListenError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	reason := "Could not open listening socket"
	if strings.Contains(err.Error(), "address already in use") {
		reason = "Address already in use - another process is listening on this port"
	} else if strings.Contains(err.Error(), "permission denied") {
		reason = "Permission denied - ports below 1024 need elevated privileges"
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to listen on %s:%d", host, port),
		Reason:  reason,
		Hint:    "Pick a free port with --listen-port",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Run 'fuzzrelay print-default-config' for a complete annotated example",
		Try:     fmt.Sprintf("Validate your config: fuzzrelay validate-config --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - host may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - nothing is listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or host unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - peer closed the connection unexpectedly"
	}

	return "Network communication failed"
}
