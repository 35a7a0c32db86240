package transport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enclavekm/rpc/wire"
)

type recordingCarrier struct {
	gotFramed []byte
	reply     []byte
	err       error
}

func (c *recordingCarrier) WriteMessageImpl(ctx context.Context, framed []byte) ([]byte, error) {
	c.gotFramed = framed
	return c.reply, c.err
}

func TestFramingTransportEncodesSessionAndPayload(t *testing.T) {
	carrier := &recordingCarrier{reply: []byte("reply")}
	tr := New(carrier)

	var sessionID wire.SessionID
	sessionID[0] = 0x42

	reply, err := tr.WriteMessage(context.Background(), sessionID, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("reply"), reply)

	frame, err := wire.DecodeFrame(carrier.gotFramed)
	require.NoError(t, err)
	require.Equal(t, sessionID, frame.Session)
	require.Equal(t, []byte("hello"), frame.Payload)
}

func TestFramingTransportPropagatesCarrierError(t *testing.T) {
	carrier := &recordingCarrier{err: errBoom}
	tr := New(carrier)

	_, err := tr.WriteMessage(context.Background(), wire.SessionID{}, []byte("hello"))
	require.ErrorIs(t, err, errBoom)
}

var errBoom = errorString("boom")

type errorString string

func (e errorString) Error() string { return string(e) }
