package ledger

import (
	"crypto/ed25519"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// SignatureTypeEd25519 tags the Ed25519 signature encoding.
const SignatureTypeEd25519 uint8 = 0

// Ed25519Signature is a public key together with its signature over an essence hash.
type Ed25519Signature struct {
	PublicKey [ed25519.PublicKeySize]byte
	Signature [ed25519.SignatureSize]byte
}

func (s Ed25519Signature) MarshalCBOR() ([]byte, error) {
	return encodeList(SignatureTypeEd25519, s.PublicKey[:], s.Signature[:])
}

// Address returns the Ed25519 address the signature's key controls.
func (s Ed25519Signature) Address() Ed25519Address {
	return Ed25519Address(Blake2b256(s.PublicKey[:]))
}

// Valid reports whether the signature verifies against msg.
func (s Ed25519Signature) Valid(msg []byte) bool {
	if ValidatePublicKey(s.PublicKey[:]) != nil {
		return false
	}
	return ed25519.Verify(s.PublicKey[:], msg, s.Signature[:])
}

func decodeEd25519Signature(raw RawMessage) (Ed25519Signature, error) {
	items, err := decodeList(raw, 3, "signature")
	if err != nil {
		return Ed25519Signature{}, err
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return Ed25519Signature{}, err
	}
	if tag != SignatureTypeEd25519 {
		return Ed25519Signature{}, fmt.Errorf("%w: signature %d", ErrUnknownType, tag)
	}
	var s Ed25519Signature
	if err := decodeFixed(items[1], s.PublicKey[:], "public key"); err != nil {
		return Ed25519Signature{}, err
	}
	if err := decodeFixed(items[2], s.Signature[:], "signature"); err != nil {
		return Ed25519Signature{}, err
	}
	return s, nil
}

// UnlockType discriminates the Unlock variants.
type UnlockType uint8

const (
	UnlockSignature UnlockType = iota
	UnlockReference
	UnlockAccount
	UnlockNFT
)

func (t UnlockType) String() string {
	switch t {
	case UnlockSignature:
		return "signature"
	case UnlockReference:
		return "reference"
	case UnlockAccount:
		return "account"
	case UnlockNFT:
		return "nft"
	default:
		return fmt.Sprintf("unlock(%d)", uint8(t))
	}
}

// Unlock proves the right to consume the input at the same position.
type Unlock interface {
	Type() UnlockType
	cbor.Marshaler
	unlock()
}

// SignatureUnlock carries a signature over the essence hash.
type SignatureUnlock struct {
	Signature Ed25519Signature
}

// ReferenceUnlock reuses the signature unlock at an earlier index.
type ReferenceUnlock struct {
	Reference uint16
}

// AccountUnlock points at the earlier input that unlocked the owning account.
type AccountUnlock struct {
	Reference uint16
}

// NFTUnlock points at the earlier input that unlocked the owning NFT.
type NFTUnlock struct {
	Reference uint16
}

func (SignatureUnlock) Type() UnlockType { return UnlockSignature }
func (ReferenceUnlock) Type() UnlockType { return UnlockReference }
func (AccountUnlock) Type() UnlockType   { return UnlockAccount }
func (NFTUnlock) Type() UnlockType       { return UnlockNFT }

func (u SignatureUnlock) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Signature)
}

func (u ReferenceUnlock) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Reference)
}

func (u AccountUnlock) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Reference)
}

func (u NFTUnlock) MarshalCBOR() ([]byte, error) {
	return encodeList(uint8(u.Type()), u.Reference)
}

func (SignatureUnlock) unlock() {}
func (ReferenceUnlock) unlock() {}
func (AccountUnlock) unlock()   {}
func (NFTUnlock) unlock()       {}

func decodeUnlock(raw RawMessage) (Unlock, error) {
	tag, err := decodeTypeFromList(raw)
	if err != nil {
		return nil, fmt.Errorf("unlock: %w", err)
	}
	items, err := decodeList(raw, 2, "unlock")
	if err != nil {
		return nil, err
	}
	switch UnlockType(tag) {
	case UnlockSignature:
		sig, err := decodeEd25519Signature(items[1])
		if err != nil {
			return nil, err
		}
		return SignatureUnlock{Signature: sig}, nil
	case UnlockReference, UnlockAccount, UnlockNFT:
		var ref uint16
		if err := Decode(items[1], &ref); err != nil {
			return nil, err
		}
		switch UnlockType(tag) {
		case UnlockReference:
			return ReferenceUnlock{Reference: ref}, nil
		case UnlockAccount:
			return AccountUnlock{Reference: ref}, nil
		default:
			return NFTUnlock{Reference: ref}, nil
		}
	default:
		return nil, fmt.Errorf("%w: unlock %d", ErrUnknownType, tag)
	}
}

// Unlocks is the positional unlock list of a transaction.
type Unlocks []Unlock

func decodeUnlocks(raw RawMessage) (Unlocks, error) {
	items, err := decodeRawList(raw, "unlocks")
	if err != nil {
		return nil, err
	}
	var out Unlocks
	for _, item := range items {
		u, err := decodeUnlock(item)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Validate checks the structural rules of an unlock list: every reference
// points strictly backwards, plain references target a signature unlock and
// no public key signs twice.
func (u Unlocks) Validate() error {
	seenKeys := make(map[[ed25519.PublicKeySize]byte]int, len(u))
	for i, unlock := range u {
		switch v := unlock.(type) {
		case SignatureUnlock:
			if prev, dup := seenKeys[v.Signature.PublicKey]; dup {
				return fmt.Errorf("%w: unlock %d repeats the signature of unlock %d", ErrInvalidUnlock, i, prev)
			}
			seenKeys[v.Signature.PublicKey] = i
		case ReferenceUnlock:
			if int(v.Reference) >= i {
				return fmt.Errorf("%w: unlock %d references %d", ErrInvalidUnlock, i, v.Reference)
			}
			if _, ok := u[v.Reference].(SignatureUnlock); !ok {
				return fmt.Errorf("%w: unlock %d references non-signature unlock %d", ErrInvalidUnlock, i, v.Reference)
			}
		case AccountUnlock:
			if int(v.Reference) >= i {
				return fmt.Errorf("%w: unlock %d references %d", ErrInvalidUnlock, i, v.Reference)
			}
		case NFTUnlock:
			if int(v.Reference) >= i {
				return fmt.Errorf("%w: unlock %d references %d", ErrInvalidUnlock, i, v.Reference)
			}
		case nil:
			return fmt.Errorf("%w: unlock %d is nil", ErrInvalidUnlock, i)
		default:
			return fmt.Errorf("%w: unlock %T", ErrUnknownType, v)
		}
	}
	return nil
}
