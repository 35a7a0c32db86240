package enclavetest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/enclavekm/rpc/wire"
)

// Handler answers a decoded request with either a success value or an
// error message.
type Handler func(method string, args interface{}) (success interface{}, callErr string, ok bool)

// FakeCarrier is a transport.Carrier that drives FakeSession's three-message
// handshake and answers subsequent request/close messages, recording every
// framed write it observes for assertions about ordering and count.
type FakeCarrier struct {
	mu       sync.Mutex
	Writes   [][]byte
	Handler  Handler
	failNext error
}

// NewFakeCarrier returns a carrier that answers requests with handler.
func NewFakeCarrier(handler Handler) *FakeCarrier {
	return &FakeCarrier{Handler: handler}
}

// FailNext arranges for the next WriteMessageImpl call to return err
// instead of performing its usual scripted reply. Used to simulate a
// transient transport failure during the first handshake exchange.
func (c *FakeCarrier) FailNext(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// WriteCount reports how many writes this carrier has observed so far.
func (c *FakeCarrier) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Writes)
}

// WriteMessageImpl implements transport.Carrier.
func (c *FakeCarrier) WriteMessageImpl(ctx context.Context, framed []byte) ([]byte, error) {
	c.mu.Lock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		c.mu.Unlock()
		return nil, err
	}
	c.Writes = append(c.Writes, framed)
	c.mu.Unlock()

	return HandleFramed(c.Handler, framed)
}

// HandleFramed drives the same toy handshake and request/close answering
// logic FakeCarrier uses, but as a standalone function so a real transport
// (e.g. an SSH-backed gateway peer in sshserver.go) can reuse it server-side
// instead of duplicating the protocol.
func HandleFramed(handler Handler, framed []byte) ([]byte, error) {
	frame, err := wire.DecodeFrame(framed)
	if err != nil {
		return nil, err
	}
	payload := frame.Payload

	switch {
	case bytes.Equal(payload, []byte("handshake-1")):
		return []byte("handshake-2"), nil
	case bytes.Equal(payload, []byte("handshake-3")):
		return nil, nil
	default:
		return answer(handler, payload)
	}
}

func answer(handler Handler, payload []byte) ([]byte, error) {
	msg, err := wire.DecodeMessage(payload)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case wire.MessageKindClose:
		return wire.EncodeMessage(wire.CloseMessage())

	case wire.MessageKindRequest:
		if handler == nil {
			return nil, errors.New("enclavetest: no handler configured for request")
		}
		success, callErr, ok := handler(msg.Request.Method, msg.Request.Args)
		resp := wire.Response{Ok: ok, Error: callErr}
		if ok {
			resp.Success = success
		}
		return wire.EncodeMessage(wire.ResponseMessage(resp))

	default:
		return nil, errors.New("enclavetest: unexpected message kind from client")
	}
}
