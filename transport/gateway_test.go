package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enclavekm/rpc/wire"
)

type fakeChannel struct {
	gotReq   CallEnclaveRequest
	response CallEnclaveResponse
	err      error
}

func (c *fakeChannel) CallEnclave(ctx context.Context, req CallEnclaveRequest) (CallEnclaveResponse, error) {
	c.gotReq = req
	return c.response, c.err
}

func TestGatewayTransportWrapsPayloadWithEndpoint(t *testing.T) {
	channel := &fakeChannel{response: CallEnclaveResponse{Payload: []byte("reply")}}
	tr := NewGatewayTransport(channel, "key-manager")

	reply, err := tr.WriteMessage(context.Background(), wire.SessionID{}, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("reply"), reply)
	require.Equal(t, "key-manager", channel.gotReq.Endpoint)
	require.NotEmpty(t, channel.gotReq.Payload)
}

func TestGatewayTransportWrapsChannelError(t *testing.T) {
	channel := &fakeChannel{err: errBoom}
	tr := NewGatewayTransport(channel, "key-manager")

	_, err := tr.WriteMessage(context.Background(), wire.SessionID{}, []byte("ping"))
	require.ErrorIs(t, err, ErrTransport)
}
