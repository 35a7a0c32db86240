// Package transport frames session-tagged blobs and hands them to a
// concrete carrier, returning the carrier's reply. The framing itself is
// shared by every carrier; carriers only implement the delivery mechanism.
package transport

import (
	"context"

	"github.com/pkg/errors"

	"github.com/enclavekm/rpc/wire"
)

// ErrTransport indicates a carrier failed, or replied with something that
// does not match its expected shape.
var ErrTransport = errors.New("transport: error")

// Transport frames payload under sessionID and delivers it through a
// concrete carrier, returning the carrier's reply bytes.
type Transport interface {
	WriteMessage(ctx context.Context, sessionID wire.SessionID, payload []byte) ([]byte, error)
}

// Carrier is the one method a concrete transport carrier implements: given
// already-framed bytes, deliver them and return the reply. The default
// framing wrapper (New) is what turns a Carrier into a Transport.
type Carrier interface {
	WriteMessageImpl(ctx context.Context, framed []byte) ([]byte, error)
}

type framingTransport struct {
	carrier Carrier
}

// New wraps a Carrier with the default session-tagged framing, so carrier
// authors only need to implement delivery of already-framed bytes.
func New(carrier Carrier) Transport {
	return &framingTransport{carrier: carrier}
}

func (t *framingTransport) WriteMessage(ctx context.Context, sessionID wire.SessionID, payload []byte) ([]byte, error) {
	framed, err := wire.EncodeFrame(sessionID, payload)
	if err != nil {
		return nil, err
	}
	return t.carrier.WriteMessageImpl(ctx, framed)
}
