package keymanager

import (
	"context"
	"crypto/ed25519"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/enclavekm/rpc/internal/enclavetest"
	"github.com/enclavekm/rpc/rpcclient"
	"github.com/enclavekm/rpc/session"
	"github.com/enclavekm/rpc/transport"
	"github.com/enclavekm/rpc/wire"
)

func newTestClient(t *testing.T, handler enclavetest.Handler) (*Client, *enclavetest.FakeCarrier) {
	t.Helper()
	builder := enclavetest.NewFakeBuilder()
	carrier := enclavetest.NewFakeCarrier(handler)
	rc := rpcclient.New(builder, transport.New(carrier), rpcclient.DefaultConfig)

	km, err := New([32]byte{1}, rc, nil, DefaultConfig)
	require.NoError(t, err)
	return km, carrier
}

func TestGetOrCreateKeysCachesOnHit(t *testing.T) {
	var calls int32
	km, _ := newTestClient(t, func(method string, args interface{}) (interface{}, string, bool) {
		require.Equal(t, "get_or_create_keys", method)
		atomic.AddInt32(&calls, 1)
		return ContractKey{Key: []byte("secret")}, "", true
	})

	id := ContractID{1, 2, 3}
	first, err := km.GetOrCreateKeys(context.Background(), id)
	require.NoError(t, err)
	second, err := km.GetOrCreateKeys(context.Background(), id)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClearCacheForcesNextRPC(t *testing.T) {
	var calls int32
	km, _ := newTestClient(t, func(method string, args interface{}) (interface{}, string, bool) {
		atomic.AddInt32(&calls, 1)
		return ContractKey{Key: []byte("secret")}, "", true
	})

	id := ContractID{9}
	_, err := km.GetOrCreateKeys(context.Background(), id)
	require.NoError(t, err)
	_, err = km.GetOrCreateKeys(context.Background(), id)
	require.NoError(t, err)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	km.ClearCache()

	_, err = km.GetOrCreateKeys(context.Background(), id)
	require.NoError(t, err)
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetPublicKeyAbsentIsNotCached(t *testing.T) {
	var calls int32
	km, _ := newTestClient(t, func(method string, args interface{}) (interface{}, string, bool) {
		require.Equal(t, "get_public_key", method)
		atomic.AddInt32(&calls, 1)
		return nil, "", true
	})

	id := ContractID{4, 5}
	key, err := km.GetPublicKey(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, key)

	key, err = km.GetPublicKey(context.Background(), id)
	require.NoError(t, err)
	require.Nil(t, key)

	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestGetPublicKeyPresentIsCached(t *testing.T) {
	var calls int32
	km, _ := newTestClient(t, func(method string, args interface{}) (interface{}, string, bool) {
		atomic.AddInt32(&calls, 1)
		return SignedPublicKey{Key: []byte("pub"), Signature: []byte("sig")}, "", true
	})

	id := ContractID{7}
	first, err := km.GetPublicKey(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := km.GetPublicKey(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, *first, *second)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestSetPolicyRequiresMajoritySignatures(t *testing.T) {
	pub1, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, priv3, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	trusted := TrustedPolicySigners{pub1, pub2}

	builder := enclavetest.NewFakeBuilder()
	carrier := enclavetest.NewFakeCarrier(nil)
	rc := rpcclient.New(builder, transport.New(carrier), rpcclient.DefaultConfig)
	km, err := New([32]byte{}, rc, trusted, DefaultConfig)
	require.NoError(t, err)

	policy := Policy{Serial: 1, Enclaves: []session.EnclaveIdentity{{MrEnclave: [32]byte{1}}}}
	canonical, err := wire.Marshal(policy)
	require.NoError(t, err)

	// A single signature from an untrusted key never reaches a majority.
	untrustedOnly, err := wire.Marshal(SignedPolicy{Policy: policy, Signatures: [][]byte{ed25519.Sign(priv3, canonical)}})
	require.NoError(t, err)
	require.ErrorIs(t, km.SetPolicy(untrustedOnly), ErrPolicyVerification)

	// Two trusted signatures reach a majority of the two-signer set.
	signed, err := wire.Marshal(SignedPolicy{
		Policy: policy,
		Signatures: [][]byte{
			ed25519.Sign(priv1, canonical),
			ed25519.Sign(priv2, canonical),
		},
	})
	require.NoError(t, err)
	require.NoError(t, km.SetPolicy(signed))
}
