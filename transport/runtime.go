package transport

import (
	"context"

	"github.com/pkg/errors"
)

// HostRPC is the in-process request/response protocol to the runtime host
// that RuntimeTransport rides on. It is an external collaborator: the
// runtime host implementation lives outside this module.
type HostRPC interface {
	// Call issues HostRpcCall{Endpoint, Request} to the host and returns the
	// response payload from HostRpcCallResponse, or an error for anything
	// else.
	Call(ctx context.Context, endpoint string, request []byte) ([]byte, error)
}

// RuntimeTransport is a Carrier that talks to an in-process runtime host.
// Calls are not genuinely asynchronous on constrained targets (the host
// call may run to completion on the calling goroutine), but WriteMessageImpl
// still takes a context for uniformity with GatewayTransport.
type RuntimeTransport struct {
	host     HostRPC
	endpoint string
}

// NewRuntimeTransport returns a Transport that delivers frames to the
// runtime host's named endpoint (e.g. "key-manager").
func NewRuntimeTransport(host HostRPC, endpoint string) Transport {
	return New(&RuntimeTransport{host: host, endpoint: endpoint})
}

// WriteMessageImpl implements Carrier.
func (t *RuntimeTransport) WriteMessageImpl(ctx context.Context, framed []byte) ([]byte, error) {
	response, err := t.host.Call(ctx, t.endpoint, framed)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	return response, nil
}
