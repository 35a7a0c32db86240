package transport

import (
	"context"

	"github.com/pkg/errors"
)

// CallEnclaveRequest is the envelope a RemoteCallChannel sends to the
// gateway, matching the wire shape CallEnclave{endpoint, payload} named in
// the external interfaces.
type CallEnclaveRequest struct {
	Endpoint string `cbor:"endpoint"`
	Payload  []byte `cbor:"payload"`
}

// CallEnclaveResponse is the gateway's reply envelope.
type CallEnclaveResponse struct {
	Payload []byte `cbor:"payload"`
}

// RemoteCallChannel is the out-of-process remote-procedure-call channel to
// a gateway that GatewayTransport rides on. A pre-established channel (e.g.
// SSHChannel) is expected to already be connected by the time it is handed
// to GatewayTransport.
type RemoteCallChannel interface {
	CallEnclave(ctx context.Context, req CallEnclaveRequest) (CallEnclaveResponse, error)
}

// GatewayTransport is a Carrier that sends CallEnclave requests over a
// pre-established RemoteCallChannel and returns the reply's payload field.
type GatewayTransport struct {
	channel  RemoteCallChannel
	endpoint string
}

// NewGatewayTransport returns a Transport that delivers frames to the named
// enclave endpoint over channel.
func NewGatewayTransport(channel RemoteCallChannel, endpoint string) Transport {
	return New(&GatewayTransport{channel: channel, endpoint: endpoint})
}

// WriteMessageImpl implements Carrier.
func (t *GatewayTransport) WriteMessageImpl(ctx context.Context, framed []byte) ([]byte, error) {
	resp, err := t.channel.CallEnclave(ctx, CallEnclaveRequest{Endpoint: t.endpoint, Payload: framed})
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	return resp.Payload, nil
}
