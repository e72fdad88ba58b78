package lsp

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the bridge can surface for a tool call.
// Transport- and process-level failures never escape the lsp package as
// anything other than one of these kinds.
type ErrorKind int

const (
	// KindNotConfigured: no language server is mapped to the file extension.
	KindNotConfigured ErrorKind = iota
	// KindSpawnFailure: the server process could not be started.
	KindSpawnFailure
	// KindProtocolError: malformed frame or JSON on the wire.
	KindProtocolError
	// KindTimeout: no response within the per-request deadline.
	KindTimeout
	// KindCancelled: the pending request was discarded (session teardown or
	// caller cancellation).
	KindCancelled
	// KindUpstreamError: the language server returned a JSON-RPC error.
	KindUpstreamError
	// KindCrashed: the server process exited while requests were outstanding.
	KindCrashed
	// KindDegraded: the session is unusable and awaits recreation.
	KindDegraded
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotConfigured:
		return "NotConfigured"
	case KindSpawnFailure:
		return "SpawnFailure"
	case KindProtocolError:
		return "ProtocolError"
	case KindTimeout:
		return "Timeout"
	case KindCancelled:
		return "Cancelled"
	case KindUpstreamError:
		return "UpstreamError"
	case KindCrashed:
		return "Crashed"
	case KindDegraded:
		return "Degraded"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the bridge's error type. Callers classify with KindOf rather than
// string matching.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps cause as a bridge error of the given kind.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// Errorf builds a bridge error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the error kind, if err is (or wraps) a bridge error.
func KindOf(err error) (ErrorKind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
