// Package session defines the contract the serialized RPC client (package
// rpcclient) relies on for the cryptographic session state machine. The
// session primitive itself -- handshake, seal, unseal -- is an external
// collaborator; this package only names the operations the client drives it
// with, per the session wrapper component design.
package session

import "github.com/enclavekm/rpc/wire"

// Session is the client-owned view of one cryptographic session with a
// remote enclave. Implementations are not safe for concurrent use; the
// owner (rpcclient.Client) serializes all access under a single mutex and
// never holds that mutex across transport I/O.
type Session interface {
	// IsConnected reports whether the session has completed its handshake
	// and is ready to carry application messages.
	IsConnected() bool

	// ProcessData folds inbound bytes into the session. It may return a
	// framed outbound blob that must be written back to the peer (during
	// the handshake), a decoded Message (once the session is past the
	// handshake), or both, or neither.
	ProcessData(incoming []byte) (outgoing []byte, msg *wire.Message, err error)

	// WriteMessage encodes an outbound application message into the
	// current session frame.
	WriteMessage(msg wire.Message) (outgoing []byte, err error)

	// Close marks the session closed. Further operations on a closed
	// session return an error.
	Close()
}

// EnclaveIdentity characterizes the signer and measurement of an enclave,
// used as an allow-list entry for the handshake peer.
type EnclaveIdentity struct {
	MrEnclave [32]byte
	MrSigner  [32]byte
}

// Builder is a factory for fresh sessions, retained by the RPC client so a
// poisoned session can be replaced without the caller having to reconstruct
// the whole client.
type Builder interface {
	// BuildInitiator produces a fresh Uninitialized session ready to begin
	// a handshake.
	BuildInitiator() Session

	// SetRemoteEnclaves constrains the handshake peer to the given set of
	// enclave identities. A nil set means "do not constrain"; a non-nil
	// empty set means "constrain but accept any" -- used by constrained
	// environments that cannot ship an allow-list at construction.
	SetRemoteEnclaves(enclaves []EnclaveIdentity)

	// SetLocalRAK provides the client's own attested identity to the
	// handshake. signer is the RAK collaborator; it is an interface here
	// (rather than a concrete *rak.RAK) so that this package does not import
	// package rak. *rak.RAK satisfies RAKSigner, so embedders pass it
	// straight through.
	SetLocalRAK(signer RAKSigner)
}

// RAKSigner is the subset of the RAK collaborator the session handshake
// needs: something that can sign a handshake transcript under its attested
// identity.
type RAKSigner interface {
	Sign(context [8]byte, message []byte) ([]byte, error)
}
