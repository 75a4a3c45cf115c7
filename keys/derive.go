// Package keys derives child key pairs from a root seed along a hierarchical
// chain: SLIP-10 for Ed25519 and BIP-32 for secp256k1.
package keys

import (
	"crypto/ed25519"
	"fmt"

	bip32 "github.com/bsv-blockchain/go-sdk/compat/bip32"
	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	chaincfg "github.com/bsv-blockchain/go-sdk/transaction/chaincfg"
	"golang.org/x/crypto/sha3"

	"github.com/bitfsorg/libledger-go/ledger"
)

// Curve selects the signature scheme a key pair is derived for.
type Curve uint8

const (
	Ed25519 Curve = iota
	Secp256k1
)

const (
	MinSeedLen = 16
	MaxSeedLen = 64
)

func (c Curve) String() string {
	switch c {
	case Ed25519:
		return "ed25519"
	case Secp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("curve(%d)", uint8(c))
	}
}

// KeyPair is a derived private key. Only one of the curve-specific keys is set.
type KeyPair struct {
	Curve Curve
	Chain Chain

	ed25519Key ed25519.PrivateKey
	ecKey      *ec.PrivateKey
}

// Derive deterministically derives the key pair at chain below seed.
func Derive(seed []byte, curve Curve, chain Chain) (*KeyPair, error) {
	if len(seed) < MinSeedLen || len(seed) > MaxSeedLen {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidSeed, len(seed))
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}

	switch curve {
	case Ed25519:
		priv, err := deriveEd25519(seed, chain)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Curve: curve, Chain: chain, ed25519Key: priv}, nil
	case Secp256k1:
		priv, err := deriveSecp256k1(seed, chain)
		if err != nil {
			return nil, err
		}
		return &KeyPair{Curve: curve, Chain: chain, ecKey: priv}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
}

func deriveSecp256k1(seed []byte, chain Chain) (*ec.PrivateKey, error) {
	if len(chain) == 0 {
		return nil, &PathError{Chain: chain.String(), Segment: -1, Reason: "secp256k1 keys are never used at the master level"}
	}
	current, err := bip32.NewMaster(seed, &chaincfg.MainNet)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDerivationFailed, err)
	}
	for i, s := range chain {
		current, err = current.Child(s.Raw())
		if err != nil {
			return nil, fmt.Errorf("%w: segment %d: %w", ErrDerivationFailed, i, err)
		}
	}
	priv, err := current.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to extract EC private key: %w", ErrDerivationFailed, err)
	}
	return priv, nil
}

// Ed25519PublicKey returns the public key of an Ed25519 pair.
func (k *KeyPair) Ed25519PublicKey() (ed25519.PublicKey, error) {
	if k.ed25519Key == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongCurve, k.Curve)
	}
	return k.ed25519Key.Public().(ed25519.PublicKey), nil
}

// Ed25519Address returns the BLAKE2b-256 address of the Ed25519 public key.
func (k *KeyPair) Ed25519Address() (ledger.Ed25519Address, error) {
	pub, err := k.Ed25519PublicKey()
	if err != nil {
		return ledger.Ed25519Address{}, err
	}
	return ledger.Ed25519Address(ledger.Blake2b256(pub)), nil
}

// SignEd25519 signs msg and returns the signature with its public key.
func (k *KeyPair) SignEd25519(msg []byte) (ledger.Ed25519Signature, error) {
	pub, err := k.Ed25519PublicKey()
	if err != nil {
		return ledger.Ed25519Signature{}, err
	}
	var sig ledger.Ed25519Signature
	copy(sig.PublicKey[:], pub)
	copy(sig.Signature[:], ed25519.Sign(k.ed25519Key, msg))
	return sig, nil
}

// Secp256k1PublicKey returns the public key of a secp256k1 pair.
func (k *KeyPair) Secp256k1PublicKey() (*ec.PublicKey, error) {
	if k.ecKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongCurve, k.Curve)
	}
	return k.ecKey.PubKey(), nil
}

// SignSecp256k1 signs a 32-byte hash and returns the DER-encoded ECDSA signature.
func (k *KeyPair) SignSecp256k1(hash []byte) ([]byte, error) {
	if k.ecKey == nil {
		return nil, fmt.Errorf("%w: %s", ErrWrongCurve, k.Curve)
	}
	sig, err := k.ecKey.Sign(hash)
	if err != nil {
		return nil, fmt.Errorf("keys: secp256k1 sign: %w", err)
	}
	return sig.Serialize(), nil
}

// EVMAddress returns the 20-byte account address of a secp256k1 pair:
// the last 20 bytes of Keccak-256 over the uncompressed public key without its prefix.
func (k *KeyPair) EVMAddress() ([20]byte, error) {
	pub, err := k.Secp256k1PublicKey()
	if err != nil {
		return [20]byte{}, err
	}
	return EVMAddress(pub), nil
}

// EVMAddress derives the EVM account address of pub.
func EVMAddress(pub *ec.PublicKey) [20]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub.Uncompressed()[1:])
	var addr [20]byte
	copy(addr[:], h.Sum(nil)[12:])
	return addr
}

// Zero clears the private key material.
func (k *KeyPair) Zero() {
	for i := range k.ed25519Key {
		k.ed25519Key[i] = 0
	}
	k.ed25519Key = nil
	k.ecKey = nil
}
