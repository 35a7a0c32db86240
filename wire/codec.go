package wire

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// ErrSerialization indicates a CBOR encode or decode failure. It does not
// poison a session the way a protocol-level error does.
var ErrSerialization = errors.New("wire: serialization error")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// Canonical mode gives deterministic output (sorted map keys, definite
	// lengths, no duplicate keys) so two encodes of the same value always
	// produce the same bytes -- the frame/session layer depends on that.
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v using the deterministic binary object representation
// shared by frames, requests, responses and messages.
func Marshal(v interface{}) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(ErrSerialization, err.Error())
	}
	return b, nil
}

// Unmarshal decodes b into v using the same representation as Marshal.
func Unmarshal(b []byte, v interface{}) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return errors.Wrap(ErrSerialization, err.Error())
	}
	return nil
}

// EncodeFrame frames payload under session for transport.
func EncodeFrame(session SessionID, payload []byte) ([]byte, error) {
	return Marshal(Frame{Session: session, Payload: payload})
}

// DecodeFrame reverses EncodeFrame.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	err := Unmarshal(b, &f)
	return f, err
}

// EncodeMessage encodes a session Message.
func EncodeMessage(m Message) ([]byte, error) {
	return Marshal(m)
}

// DecodeMessage decodes and validates a session Message.
func DecodeMessage(b []byte) (Message, error) {
	var m Message
	if err := Unmarshal(b, &m); err != nil {
		return Message{}, err
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// EncodeArgs encodes an RPC call's argument value into the opaque form
// carried by Request.Args, going through the same canonical encoding as
// everything else so the resulting bytes are reproducible.
func EncodeArgs(args interface{}) (interface{}, error) {
	raw, err := Marshal(args)
	if err != nil {
		return nil, err
	}
	return cbor.RawMessage(raw), nil
}

// DecodeInto decodes a previously-encoded value (as produced by EncodeArgs,
// or a Response.Success field) into out.
func DecodeInto(value interface{}, out interface{}) error {
	switch v := value.(type) {
	case cbor.RawMessage:
		return Unmarshal(v, out)
	case []byte:
		return Unmarshal(v, out)
	default:
		// Re-marshal and decode -- handles the case where the value already
		// went through one generic CBOR round-trip (e.g. a decoded
		// map[interface{}]interface{}) and needs to land in a concrete type.
		raw, err := Marshal(v)
		if err != nil {
			return err
		}
		return Unmarshal(raw, out)
	}
}
