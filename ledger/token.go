package ledger

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"sort"
)

// TokenIDLength is the size of a native token id (the id of its foundry).
const TokenIDLength = 1 + AddressIDLength + 4 + 1

// TokenSchemeSimple is the only token scheme supported by foundries.
const TokenSchemeSimple uint8 = 0

// TokenID identifies a native token by the foundry that controls its supply.
type TokenID [TokenIDLength]byte

// FoundryID computes the id of the foundry with the given serial number owned by account.
func FoundryID(account AccountAddress, serial uint32, scheme uint8) TokenID {
	var id TokenID
	copy(id[:], AddressBytes(account))
	binary.LittleEndian.PutUint32(id[1+AddressIDLength:], serial)
	id[TokenIDLength-1] = scheme
	return id
}

func (t TokenID) Hex() string    { return "0x" + hex.EncodeToString(t[:]) }
func (t TokenID) String() string { return t.Hex() }

// Compare orders token ids by their raw bytes.
func (t TokenID) Compare(other TokenID) int { return bytes.Compare(t[:], other[:]) }

// NativeToken is an amount of a user-defined token carried by an output.
type NativeToken struct {
	ID     TokenID
	Amount uint64
}

func (n NativeToken) MarshalCBOR() ([]byte, error) {
	return encodeList(n.ID[:], n.Amount)
}

func decodeNativeToken(raw RawMessage) (NativeToken, error) {
	items, err := decodeList(raw, 2, "native token")
	if err != nil {
		return NativeToken{}, err
	}
	var n NativeToken
	if err := decodeFixed(items[0], n.ID[:], "token id"); err != nil {
		return NativeToken{}, err
	}
	if err := Decode(items[1], &n.Amount); err != nil {
		return NativeToken{}, err
	}
	return n, nil
}

func decodeNativeTokens(raw RawMessage) (NativeTokens, error) {
	items, err := decodeRawList(raw, "native tokens")
	if err != nil {
		return nil, err
	}
	var out NativeTokens
	for _, item := range items {
		n, err := decodeNativeToken(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// NativeTokens is the list of native tokens held by one output.
type NativeTokens []NativeToken

// Balance folds the list into a per-token sum.
func (n NativeTokens) Balance() (TokenBalance, error) {
	b := TokenBalance{}
	for _, t := range n {
		if err := b.Add(t.ID, t.Amount); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Validate checks that ids are unique and amounts non-zero.
func (n NativeTokens) Validate(max int) error {
	if max > 0 && len(n) > max {
		return fmt.Errorf("%w: %d native tokens exceeds limit %d", ErrInvalidOutput, len(n), max)
	}
	seen := make(map[TokenID]struct{}, len(n))
	for _, t := range n {
		if t.Amount == 0 {
			return fmt.Errorf("%w: native token %s has zero amount", ErrInvalidOutput, t.ID)
		}
		if _, dup := seen[t.ID]; dup {
			return fmt.Errorf("%w: duplicate native token %s", ErrInvalidOutput, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return nil
}

// TokenBalance maps token ids to amounts.
type TokenBalance map[TokenID]uint64

// Add increases the balance of id by amount.
func (b TokenBalance) Add(id TokenID, amount uint64) error {
	sum, carry := bits.Add64(b[id], amount, 0)
	if carry != 0 {
		return fmt.Errorf("%w: token %s", ErrAmountOverflow, id)
	}
	b[id] = sum
	return nil
}

// Merge adds every entry of other into b.
func (b TokenBalance) Merge(other TokenBalance) error {
	for id, amount := range other {
		if err := b.Add(id, amount); err != nil {
			return err
		}
	}
	return nil
}

// IDs returns the token ids with a non-zero balance in canonical order.
func (b TokenBalance) IDs() []TokenID {
	ids := make([]TokenID, 0, len(b))
	for id, amount := range b {
		if amount > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}

// NativeTokens converts the balance into a sorted list, dropping zero entries.
func (b TokenBalance) NativeTokens() NativeTokens {
	ids := b.IDs()
	if len(ids) == 0 {
		return nil
	}
	out := make(NativeTokens, 0, len(ids))
	for _, id := range ids {
		out = append(out, NativeToken{ID: id, Amount: b[id]})
	}
	return out
}
