package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	TransactionIDLength = 32
	OutputIndexLength   = 2
	OutputIDLength      = TransactionIDLength + OutputIndexLength
	BlockIDLength       = 32
	ChainIDLength       = 32
)

// TransactionID identifies a transaction payload.
type TransactionID [TransactionIDLength]byte

// OutputID is the producing transaction id followed by the little-endian output index.
type OutputID [OutputIDLength]byte

// BlockID identifies a block accepted by a node.
type BlockID [BlockIDLength]byte

// AccountID is the chain id of an account output.
type AccountID [ChainIDLength]byte

// NFTID is the chain id of an NFT output.
type NFTID [ChainIDLength]byte

// NewOutputID builds the id of the output at index within transaction txID.
func NewOutputID(txID TransactionID, index uint16) OutputID {
	var id OutputID
	copy(id[:TransactionIDLength], txID[:])
	binary.LittleEndian.PutUint16(id[TransactionIDLength:], index)
	return id
}

// TransactionID returns the id of the transaction that created the output.
func (o OutputID) TransactionID() TransactionID {
	var t TransactionID
	copy(t[:], o[:TransactionIDLength])
	return t
}

// Index returns the position of the output within its transaction.
func (o OutputID) Index() uint16 {
	return binary.LittleEndian.Uint16(o[TransactionIDLength:])
}

// Compare orders output ids by their raw bytes.
func (o OutputID) Compare(other OutputID) int {
	return bytes.Compare(o[:], other[:])
}

func (o OutputID) Hex() string    { return "0x" + hex.EncodeToString(o[:]) }
func (o OutputID) String() string { return o.Hex() }

func (o OutputID) MarshalText() ([]byte, error) { return []byte(o.Hex()), nil }

func (o *OutputID) UnmarshalText(text []byte) error {
	id, err := OutputIDFromHex(string(text))
	if err != nil {
		return err
	}
	*o = id
	return nil
}

// OutputIDFromHex parses a hex output id with or without 0x prefix.
func OutputIDFromHex(s string) (OutputID, error) {
	var id OutputID
	if err := decodeHexID(s, id[:], "output id"); err != nil {
		return OutputID{}, err
	}
	return id, nil
}

// SortOutputIDs sorts ids in place into canonical byte order.
func SortOutputIDs(ids []OutputID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
}

func (t TransactionID) Hex() string    { return "0x" + hex.EncodeToString(t[:]) }
func (t TransactionID) String() string { return t.Hex() }

func (t TransactionID) MarshalText() ([]byte, error) { return []byte(t.Hex()), nil }

func (t *TransactionID) UnmarshalText(text []byte) error {
	id, err := TransactionIDFromHex(string(text))
	if err != nil {
		return err
	}
	*t = id
	return nil
}

// TransactionIDFromHex parses a hex transaction id.
func TransactionIDFromHex(s string) (TransactionID, error) {
	var id TransactionID
	if err := decodeHexID(s, id[:], "transaction id"); err != nil {
		return TransactionID{}, err
	}
	return id, nil
}

func (b BlockID) Hex() string    { return "0x" + hex.EncodeToString(b[:]) }
func (b BlockID) String() string { return b.Hex() }

func (b BlockID) MarshalText() ([]byte, error) { return []byte(b.Hex()), nil }

func (b *BlockID) UnmarshalText(text []byte) error {
	id, err := BlockIDFromHex(string(text))
	if err != nil {
		return err
	}
	*b = id
	return nil
}

// BlockIDFromHex parses a hex block id.
func BlockIDFromHex(s string) (BlockID, error) {
	var id BlockID
	if err := decodeHexID(s, id[:], "block id"); err != nil {
		return BlockID{}, err
	}
	return id, nil
}

// IsZero reports whether the id is the placeholder used by a newly created account.
func (a AccountID) IsZero() bool { return a == AccountID{} }

// IsZero reports whether the id is the placeholder used by a newly minted NFT.
func (n NFTID) IsZero() bool { return n == NFTID{} }

// AccountIDFromOutputID derives the id of an account created by the given output.
func AccountIDFromOutputID(id OutputID) AccountID {
	return AccountID(Blake2b256(id[:]))
}

// NFTIDFromOutputID derives the id of an NFT minted by the given output.
func NFTIDFromOutputID(id OutputID) NFTID {
	return NFTID(Blake2b256(id[:]))
}

func decodeHexID(s string, dest []byte, what string) error {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidID, what, err)
	}
	if len(b) != len(dest) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrInvalidID, what, len(dest), len(b))
	}
	copy(dest, b)
	return nil
}
