package runner

import (
	"context"
	"errors"
	"net"

	"github.com/gorilla/websocket"
)

// FailureKind classifies why a connection did not complete its batch.
type FailureKind string

const (
	FailureNone             FailureKind = ""
	FailureConnect          FailureKind = "connect_failure"
	FailureHandshakeTimeout FailureKind = "handshake_timeout"
	FailureKeepaliveTimeout FailureKind = "keepalive_timeout"
	FailureProtocol         FailureKind = "protocol_error"
	// FailureCancelled marks a connection torn down by run cancellation
	// before it ever reached the hold phase. Not an error condition.
	FailureCancelled FailureKind = "cancelled"
)

// errUnexpectedPayload flags an echo that came back different from what was
// sent.
var errUnexpectedPayload = errors.New("unexpected echo payload")

// classifyEchoError maps an in-flight probe error to a failure kind.
// timeoutKind says which phase the probe belonged to, since a blown read
// deadline looks the same in both.
func classifyEchoError(err error, timeoutKind FailureKind) FailureKind {
	if errors.Is(err, errUnexpectedPayload) {
		return FailureProtocol
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureCancelled
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return timeoutKind
	}
	// Abrupt close, unexpected frame type, broken pipe: all protocol-level.
	if websocket.IsUnexpectedCloseError(err) {
		return FailureProtocol
	}
	return FailureProtocol
}
