package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var sid SessionID
	for i := range sid {
		sid[i] = byte(i)
	}

	encoded, err := EncodeFrame(sid, []byte("hello"))
	require.NoError(t, err)

	f, err := DecodeFrame(encoded)
	require.NoError(t, err)
	require.Equal(t, sid, f.Session)
	require.Equal(t, []byte("hello"), f.Payload)
}

func TestEncodeIsDeterministic(t *testing.T) {
	req := Request{Method: "get_or_create_keys", Args: map[string]interface{}{"b": 2, "a": 1}}

	a, err := Marshal(req)
	require.NoError(t, err)
	b, err := Marshal(req)
	require.NoError(t, err)
	require.Equal(t, a, b, "canonical encoding must be deterministic across calls")
}

func TestMessageRoundTrip(t *testing.T) {
	args, err := EncodeArgs(42)
	require.NoError(t, err)

	msg := RequestMessage(Request{Method: "echo", Args: args})
	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, MessageKindRequest, decoded.Kind)
	require.NotNil(t, decoded.Request)
	require.Equal(t, "echo", decoded.Request.Method)

	var out int
	require.NoError(t, DecodeInto(decoded.Request.Args, &out))
	require.Equal(t, 42, out)
}

func TestCloseMessageHasNoPayload(t *testing.T) {
	encoded, err := EncodeMessage(CloseMessage())
	require.NoError(t, err)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.Equal(t, MessageKindClose, decoded.Kind)
	require.Nil(t, decoded.Request)
	require.Nil(t, decoded.Response)
}

func TestDecodeMessageRejectsMismatchedPayload(t *testing.T) {
	// A Kind of Request with no Request payload is malformed.
	m := Message{Kind: MessageKindRequest}
	require.ErrorIs(t, m.Validate(), ErrMalformedMessage)
}

func TestResponseRoundTrip(t *testing.T) {
	args, err := EncodeArgs("contract-key-bytes")
	require.NoError(t, err)

	msg := ResponseMessage(Response{Ok: true, Success: args})
	encoded, err := EncodeMessage(msg)
	require.NoError(t, err)

	decoded, err := DecodeMessage(encoded)
	require.NoError(t, err)
	require.True(t, decoded.Response.Ok)

	var out string
	require.NoError(t, DecodeInto(decoded.Response.Success, &out))
	require.Equal(t, "contract-key-bytes", out)
}
