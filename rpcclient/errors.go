package rpcclient

import "github.com/pkg/errors"

var (
	// ErrExpectedResponseMessage is returned when a call's reply decodes to
	// something other than a response message. The session is poisoned; the
	// next call triggers a fresh handshake. It is also returned when the
	// handshake's final exchange leaves the session unconnected.
	ErrExpectedResponseMessage = errors.New("rpcclient: expected response message")

	// ErrExpectedCloseMessage is the close protocol's error when its reply
	// decodes to something other than a close message. The controller runs
	// the close protocol at shutdown and swallows its errors.
	ErrExpectedCloseMessage = errors.New("rpcclient: expected close message")

	// ErrUnexpectedOutboundData is returned when the session emits outbound
	// bytes while already in its connected, post-handshake state. The
	// source this is ported from leaves this case ambiguous; this client
	// treats it as a protocol violation rather than silently dropping the
	// bytes.
	ErrUnexpectedOutboundData = errors.New("rpcclient: unexpected outbound data from connected session")
)

// CallFailedError wraps the error string returned in a remote Response's
// error body.
type CallFailedError struct {
	Message string
}

func (e *CallFailedError) Error() string {
	return "rpcclient: call failed: " + e.Message
}

// Is lets errors.Is(err, ErrCallFailed) match any *CallFailedError.
func (e *CallFailedError) Is(target error) bool {
	return target == ErrCallFailed
}

// ErrCallFailed is the sentinel errors.Is target for *CallFailedError.
var ErrCallFailed = errors.New("rpcclient: call failed")
