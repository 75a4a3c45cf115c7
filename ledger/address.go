package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"github.com/fxamacker/cbor/v2"
)

// AddressType discriminates the Address variants.
type AddressType uint8

const (
	AddressEd25519 AddressType = 0
	AddressAccount AddressType = 8
	AddressNFT     AddressType = 16
)

// AddressIDLength is the size of the identifier carried by every address kind.
const AddressIDLength = 32

func (t AddressType) String() string {
	switch t {
	case AddressEd25519:
		return "ed25519"
	case AddressAccount:
		return "account"
	case AddressNFT:
		return "nft"
	default:
		return fmt.Sprintf("address(%d)", uint8(t))
	}
}

// AddressKey is a comparable form of an address (type byte followed by id).
type AddressKey [1 + AddressIDLength]byte

// Address is the sum type of ledger addresses.
type Address interface {
	Type() AddressType
	// ID returns the 32-byte public key hash or chain id.
	ID() [AddressIDLength]byte
	Key() AddressKey
	Bech32(hrp string) string
	String() string
	cbor.Marshaler
	address()
}

// Ed25519Address is the BLAKE2b-256 hash of an Ed25519 public key.
type Ed25519Address [AddressIDLength]byte

// AccountAddress is the address of an account (alias) chain.
type AccountAddress [AddressIDLength]byte

// NFTAddress is the address of an NFT chain.
type NFTAddress [AddressIDLength]byte

var (
	_ Address = Ed25519Address{}
	_ Address = AccountAddress{}
	_ Address = NFTAddress{}
)

func (Ed25519Address) Type() AddressType { return AddressEd25519 }
func (AccountAddress) Type() AddressType { return AddressAccount }
func (NFTAddress) Type() AddressType     { return AddressNFT }

func (a Ed25519Address) ID() [AddressIDLength]byte { return a }
func (a AccountAddress) ID() [AddressIDLength]byte { return a }
func (a NFTAddress) ID() [AddressIDLength]byte     { return a }

func (a Ed25519Address) Key() AddressKey { return addressKey(a) }
func (a AccountAddress) Key() AddressKey { return addressKey(a) }
func (a NFTAddress) Key() AddressKey     { return addressKey(a) }

func (a Ed25519Address) Bech32(hrp string) string { return encodeBech32(hrp, a) }
func (a AccountAddress) Bech32(hrp string) string { return encodeBech32(hrp, a) }
func (a NFTAddress) Bech32(hrp string) string     { return encodeBech32(hrp, a) }

func (a Ed25519Address) String() string { return addressString(a) }
func (a AccountAddress) String() string { return addressString(a) }
func (a NFTAddress) String() string     { return addressString(a) }

func (a Ed25519Address) MarshalCBOR() ([]byte, error) { return marshalAddress(a) }
func (a AccountAddress) MarshalCBOR() ([]byte, error) { return marshalAddress(a) }
func (a NFTAddress) MarshalCBOR() ([]byte, error)     { return marshalAddress(a) }

func (Ed25519Address) address() {}
func (AccountAddress) address() {}
func (NFTAddress) address()     {}

func addressKey(a Address) AddressKey {
	var k AddressKey
	k[0] = byte(a.Type())
	id := a.ID()
	copy(k[1:], id[:])
	return k
}

func addressString(a Address) string {
	id := a.ID()
	return a.Type().String() + ":" + hex.EncodeToString(id[:])
}

func marshalAddress(a Address) ([]byte, error) {
	id := a.ID()
	return encodeList(uint8(a.Type()), id[:])
}

// AddressBytes returns the serialized form used for bech32: type byte followed by id.
func AddressBytes(a Address) []byte {
	k := a.Key()
	return k[:]
}

// EqualAddress reports whether a and b are the same address. Nil addresses are never equal.
func EqualAddress(a, b Address) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Key() == b.Key()
}

func encodeBech32(hrp string, a Address) string {
	conv, err := bech32.ConvertBits(AddressBytes(a), 8, 5, true)
	if err != nil {
		panic(fmt.Sprintf("unexpected error converting address bits: %s", err))
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		panic(fmt.Sprintf("unexpected error encoding data as bech32: %s", err))
	}
	return encoded
}

// AddressFromBytes parses the type-prefixed address form.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != 1+AddressIDLength {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidAddress, 1+AddressIDLength, len(b))
	}
	var id [AddressIDLength]byte
	copy(id[:], b[1:])
	return newAddress(AddressType(b[0]), id)
}

func newAddress(t AddressType, id [AddressIDLength]byte) (Address, error) {
	switch t {
	case AddressEd25519:
		return Ed25519Address(id), nil
	case AddressAccount:
		return AccountAddress(id), nil
	case AddressNFT:
		return NFTAddress(id), nil
	default:
		return nil, fmt.Errorf("%w: address type %d", ErrUnknownType, uint8(t))
	}
}

// ParseBech32 decodes a bech32 address string and returns its human-readable part.
func ParseBech32(s string) (string, Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", ErrInvalidAddress, err)
	}
	addr, err := AddressFromBytes(decoded)
	if err != nil {
		return "", nil, err
	}
	return hrp, addr, nil
}

// ParseBech32WithHRP decodes s and checks that it carries the expected prefix.
func ParseBech32WithHRP(s, hrp string) (Address, error) {
	got, addr, err := ParseBech32(s)
	if err != nil {
		return nil, err
	}
	if got != hrp {
		return nil, fmt.Errorf("%w: prefix %q, want %q", ErrInvalidAddress, got, hrp)
	}
	return addr, nil
}

// ValidatePublicKey checks that pub is a canonical encoding of an Ed25519 curve point.
func ValidatePublicKey(pub []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(pub))
	}
	p, err := new(edwards25519.Point).SetBytes(pub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}
	if !bytes.Equal(p.Bytes(), pub) {
		return fmt.Errorf("%w: non-canonical encoding", ErrInvalidPublicKey)
	}
	return nil
}

// Ed25519AddressFromPublicKey hashes a validated public key into an address.
func Ed25519AddressFromPublicKey(pub []byte) (Ed25519Address, error) {
	if err := ValidatePublicKey(pub); err != nil {
		return Ed25519Address{}, err
	}
	return Ed25519Address(Blake2b256(pub)), nil
}

// decodeAddress decodes the [type, id] form.
func decodeAddress(raw RawMessage) (Address, error) {
	items, err := decodeList(raw, 2, "address")
	if err != nil {
		return nil, err
	}
	var t uint8
	if err := Decode(items[0], &t); err != nil {
		return nil, err
	}
	var id [AddressIDLength]byte
	if err := decodeFixed(items[1], id[:], "address id"); err != nil {
		return nil, err
	}
	return newAddress(AddressType(t), id)
}

// DecodeAddress decodes a standalone canonical address encoding.
func DecodeAddress(data []byte) (Address, error) {
	return decodeAddress(data)
}
