// Package enclavetest provides an in-memory stand-in for a real enclave
// peer: a toy three-state handshake, a session builder that records the
// sessions it produces, and a scriptable transport carrier. Production code
// never imports this package; it exists for rpcclient, keymanager and
// transport tests.
package enclavetest

import (
	"errors"
	"sync"

	"github.com/enclavekm/rpc/session"
	"github.com/enclavekm/rpc/wire"
)

type state int

const (
	stateUninitialized state = iota
	stateHandshakeOutbound
	stateHandshakeInbound
	stateTransport
	stateClosed
)

// FakeSession is a minimal session.Session: a three-message handshake
// (handshake-1/handshake-2/handshake-3) with no actual cryptography, and
// pass-through Message encode/decode once in Transport state.
type FakeSession struct {
	mu             sync.Mutex
	state          state
	remoteEnclaves []session.EnclaveIdentity
	rak            session.RAKSigner
}

// NewFakeSession returns a fresh, Uninitialized session.
func NewFakeSession() *FakeSession {
	return &FakeSession{}
}

// IsConnected implements session.Session.
func (s *FakeSession) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateTransport
}

// ProcessData implements session.Session.
func (s *FakeSession) ProcessData(incoming []byte) ([]byte, *wire.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case stateUninitialized:
		s.state = stateHandshakeOutbound
		return []byte("handshake-1"), nil, nil

	case stateHandshakeOutbound:
		if string(incoming) != "handshake-2" {
			return nil, nil, errors.New("enclavetest: expected handshake-2")
		}
		s.state = stateHandshakeInbound
		return []byte("handshake-3"), nil, nil

	case stateHandshakeInbound:
		s.state = stateTransport
		return nil, nil, nil

	case stateTransport:
		if len(incoming) == 0 {
			return nil, nil, nil
		}
		msg, err := wire.DecodeMessage(incoming)
		if err != nil {
			return nil, nil, err
		}
		return nil, &msg, nil

	default:
		return nil, nil, errors.New("enclavetest: session is closed")
	}
}

// WriteMessage implements session.Session.
func (s *FakeSession) WriteMessage(msg wire.Message) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateTransport {
		return nil, errors.New("enclavetest: write attempted before transport state")
	}
	return wire.EncodeMessage(msg)
}

// Close implements session.Session.
func (s *FakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateClosed
}

// FakeBuilder implements session.Builder, recording every session it
// builds so tests can assert a fresh initiator replaced a poisoned one.
type FakeBuilder struct {
	mu             sync.Mutex
	remoteEnclaves []session.EnclaveIdentity
	rak            session.RAKSigner
	Built          []*FakeSession
}

// NewFakeBuilder returns an empty builder.
func NewFakeBuilder() *FakeBuilder {
	return &FakeBuilder{}
}

// BuildInitiator implements session.Builder.
func (b *FakeBuilder) BuildInitiator() session.Session {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := NewFakeSession()
	s.remoteEnclaves = b.remoteEnclaves
	s.rak = b.rak
	b.Built = append(b.Built, s)
	return s
}

// SetRemoteEnclaves implements session.Builder.
func (b *FakeBuilder) SetRemoteEnclaves(enclaves []session.EnclaveIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remoteEnclaves = enclaves
}

// SetLocalRAK implements session.Builder.
func (b *FakeBuilder) SetLocalRAK(signer session.RAKSigner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rak = signer
}

// SessionCount reports how many sessions this builder has produced.
func (b *FakeBuilder) SessionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Built)
}
