package keymanager

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imdario/mergo"

	"github.com/enclavekm/rpc/rpcclient"
)

// Client layers get_or_create_keys, get_public_key, replicate_master_secret
// and set_policy on top of a serialized RPC client, with two independent
// bounded LRU caches for the two per-contract lookups.
type Client struct {
	runtimeID      [32]byte
	rpcClient      *rpcclient.Client
	trustedSigners TrustedPolicySigners

	secretKeys *lru.Cache[ContractID, ContractKey]
	publicKeys *lru.Cache[ContractID, SignedPublicKey]
}

// New constructs a Client scoped to runtimeID, calling through rpcClient,
// with both caches bounded by cfg.CacheCapacity. trustedSigners governs
// SetPolicy; a nil or empty set means no policy will ever verify.
func New(runtimeID [32]byte, rpcClient *rpcclient.Client, trustedSigners TrustedPolicySigners, cfg *Config) (*Client, error) {
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	_ = mergo.Merge(&resolved, DefaultConfig)

	secretKeys, err := lru.New[ContractID, ContractKey](resolved.CacheCapacity)
	if err != nil {
		return nil, err
	}
	publicKeys, err := lru.New[ContractID, SignedPublicKey](resolved.CacheCapacity)
	if err != nil {
		return nil, err
	}

	return &Client{
		runtimeID:      runtimeID,
		rpcClient:      rpcClient,
		trustedSigners: trustedSigners,
		secretKeys:     secretKeys,
		publicKeys:     publicKeys,
	}, nil
}

// ClearCache empties both caches. The two write-locks are acquired
// sequentially, never simultaneously, so there is no lock-ordering concern
// with any downstream code holding one of them.
func (c *Client) ClearCache() {
	c.secretKeys.Purge()
	c.publicKeys.Purge()
}

// GetOrCreateKeys serves contractID's secret key from cache on a hit; on a
// miss it calls through to the key manager, populates the cache, and
// returns the value. Only a successful remote response is cached.
func (c *Client) GetOrCreateKeys(ctx context.Context, contractID ContractID) (ContractKey, error) {
	if key, ok := c.secretKeys.Get(contractID); ok {
		return key, nil
	}

	key, err := rpcclient.Call[ContractKey](ctx, c.rpcClient, "get_or_create_keys", RequestIDs{
		RuntimeID:  c.runtimeID,
		ContractID: contractID,
	})
	if err != nil {
		return ContractKey{}, err
	}

	c.secretKeys.Add(contractID, key)
	return key, nil
}

// GetPublicKey serves contractID's signed public key from cache on a hit.
// On a miss it calls through; the remote may legitimately report no public
// key for the contract yet, in which case nil is returned and nothing is
// cached, so the next call re-queries.
func (c *Client) GetPublicKey(ctx context.Context, contractID ContractID) (*SignedPublicKey, error) {
	if key, ok := c.publicKeys.Get(contractID); ok {
		return &key, nil
	}

	key, err := rpcclient.Call[*SignedPublicKey](ctx, c.rpcClient, "get_public_key", RequestIDs{
		RuntimeID:  c.runtimeID,
		ContractID: contractID,
	})
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, nil
	}

	c.publicKeys.Add(contractID, *key)
	return key, nil
}

// ReplicateMasterSecret is a passthrough call; its result is never cached.
func (c *Client) ReplicateMasterSecret(ctx context.Context) (*MasterSecret, error) {
	return rpcclient.Call[*MasterSecret](ctx, c.rpcClient, "replicate_master_secret", struct{}{})
}

// SetPolicy decodes signedPolicyBytes, verifies its signatures against the
// configured trusted signers, and on success pushes the policy's enclave
// list to the RPC client's session builder as the handshake peer
// allow-list. A verification failure is fatal for this call: the caches are
// left untouched and the allow-list is not updated.
func (c *Client) SetPolicy(signedPolicyBytes []byte) error {
	sp, err := DecodeSignedPolicy(signedPolicyBytes)
	if err != nil {
		return err
	}
	if err := c.trustedSigners.verify(sp); err != nil {
		return err
	}

	c.rpcClient.Builder().SetRemoteEnclaves(sp.Policy.Enclaves)
	return nil
}
