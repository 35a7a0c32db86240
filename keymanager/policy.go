package keymanager

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/enclavekm/rpc/session"
	"github.com/enclavekm/rpc/wire"
)

// ErrPolicyVerification indicates a signed policy failed signature
// verification. Per the error handling design, this is fatal for SetPolicy:
// caches are left untouched and the enclave allow-list is not updated.
var ErrPolicyVerification = errors.New("keymanager: policy verification failed")

// Policy names the enclave identities a key manager is permitted to serve,
// at a given policy serial number.
type Policy struct {
	Serial    uint32                    `cbor:"serial"`
	RuntimeID [32]byte                  `cbor:"runtime_id"`
	Enclaves  []session.EnclaveIdentity `cbor:"enclaves"`
}

// SignedPolicy pairs a Policy with the Ed25519 signatures collected over its
// canonical encoding.
type SignedPolicy struct {
	Policy     Policy   `cbor:"policy"`
	Signatures [][]byte `cbor:"signatures"`
}

// DecodeSignedPolicy decodes a wire-encoded SignedPolicy.
func DecodeSignedPolicy(b []byte) (SignedPolicy, error) {
	var sp SignedPolicy
	err := wire.Unmarshal(b, &sp)
	return sp, err
}

// TrustedPolicySigners is the pre-configured set of keys allowed to sign a
// policy.
type TrustedPolicySigners []ed25519.PublicKey

// verify accepts sp when a strict majority of the configured signers
// produced a valid signature over the policy's canonical encoding. An empty
// signer set never verifies -- that would make every policy trivially
// trusted.
func (t TrustedPolicySigners) verify(sp SignedPolicy) error {
	if len(t) == 0 {
		return ErrPolicyVerification
	}

	canonical, err := wire.Marshal(sp.Policy)
	if err != nil {
		return err
	}

	validSigners := make(map[string]struct{})
	for _, sig := range sp.Signatures {
		if len(sig) != ed25519.SignatureSize {
			continue
		}
		for _, signer := range t {
			if ed25519.Verify(signer, canonical, sig) {
				validSigners[string(signer)] = struct{}{}
			}
		}
	}

	if len(validSigners)*2 <= len(t) {
		return ErrPolicyVerification
	}
	return nil
}
