package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enclavekm/rpc/wire"
)

type fakeHost struct {
	gotEndpoint string
	gotRequest  []byte
	response    []byte
	err         error
}

func (h *fakeHost) Call(ctx context.Context, endpoint string, request []byte) ([]byte, error) {
	h.gotEndpoint = endpoint
	h.gotRequest = request
	return h.response, h.err
}

func TestRuntimeTransportDelegatesToHost(t *testing.T) {
	host := &fakeHost{response: []byte("pong")}
	tr := NewRuntimeTransport(host, "key-manager")

	reply, err := tr.WriteMessage(context.Background(), wire.SessionID{}, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, []byte("pong"), reply)
	require.Equal(t, "key-manager", host.gotEndpoint)
	require.NotEmpty(t, host.gotRequest)
}

func TestRuntimeTransportWrapsHostError(t *testing.T) {
	host := &fakeHost{err: errBoom}
	tr := NewRuntimeTransport(host, "key-manager")

	_, err := tr.WriteMessage(context.Background(), wire.SessionID{}, []byte("ping"))
	require.ErrorIs(t, err, ErrTransport)
}
