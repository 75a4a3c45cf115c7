// Package secret holds the custody back ends that derive addresses and sign
// essence hashes: an in-memory mnemonic, an encrypted vault file and a proxy
// to a hardware device bridge.
package secret

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
)

// Manager is the uniform contract of every custody back end.
type Manager interface {
	// Ed25519Address derives the address at chain.
	Ed25519Address(ctx context.Context, chain keys.Chain) (ledger.Ed25519Address, error)
	// SignEssenceHash signs hash with the key at chain.
	SignEssenceHash(ctx context.Context, hash ledger.Digest, chain keys.Chain) (ledger.Ed25519Signature, error)
}

// EVMSigner is implemented by back ends that also hold secp256k1 keys.
type EVMSigner interface {
	EVMAddress(ctx context.Context, chain keys.Chain) ([20]byte, error)
	SignSecp256k1(ctx context.Context, hash []byte, chain keys.Chain) ([]byte, error)
}

// Serial is implemented by back ends that can only serve one request at a time.
type Serial interface {
	Serial() bool
}

// IsSerial reports whether m must not be called concurrently.
func IsSerial(m Manager) bool {
	s, ok := m.(Serial)
	return ok && s.Serial()
}

// AddressRange selects a contiguous run of BIP-44 addresses.
type AddressRange struct {
	CoinType uint32
	Account  uint32
	Internal bool
	Start    uint32
	Count    uint32
}

// GeneratedAddress is an address together with the chain it was derived at.
type GeneratedAddress struct {
	Chain   keys.Chain
	Address ledger.Ed25519Address
}

// GenerateAddresses derives r.Count addresses starting at r.Start.
func GenerateAddresses(ctx context.Context, m Manager, r AddressRange) ([]GeneratedAddress, error) {
	if uint64(r.Start)+uint64(r.Count) > keys.MaxIndex+1 {
		return nil, fmt.Errorf("%w: range %d+%d exceeds index space", keys.ErrInvalidPath, r.Start, r.Count)
	}
	out := make([]GeneratedAddress, 0, r.Count)
	for i := uint32(0); i < r.Count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chain := keys.Bip44Chain(r.CoinType, r.Account, r.Internal, r.Start+i)
		addr, err := m.Ed25519Address(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("secret: address %s: %w", chain, err)
		}
		out = append(out, GeneratedAddress{Chain: chain, Address: addr})
	}
	return out, nil
}

// seed-backed helpers shared by the mnemonic and vault managers.

func seedAddress(seed []byte, chain keys.Chain) (ledger.Ed25519Address, error) {
	kp, err := keys.Derive(seed, keys.Ed25519, chain)
	if err != nil {
		return ledger.Ed25519Address{}, err
	}
	defer kp.Zero()
	return kp.Ed25519Address()
}

func seedSign(seed []byte, hash ledger.Digest, chain keys.Chain) (ledger.Ed25519Signature, error) {
	kp, err := keys.Derive(seed, keys.Ed25519, chain)
	if err != nil {
		return ledger.Ed25519Signature{}, err
	}
	defer kp.Zero()
	return kp.SignEd25519(hash[:])
}

func seedEVMAddress(seed []byte, chain keys.Chain) ([20]byte, error) {
	kp, err := keys.Derive(seed, keys.Secp256k1, chain)
	if err != nil {
		return [20]byte{}, err
	}
	defer kp.Zero()
	return kp.EVMAddress()
}

func seedSignSecp256k1(seed, hash []byte, chain keys.Chain) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHash
	}
	kp, err := keys.Derive(seed, keys.Secp256k1, chain)
	if err != nil {
		return nil, err
	}
	defer kp.Zero()
	return kp.SignSecp256k1(hash)
}
