package keys

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	// HardenedOffset is added to an index to request hardened derivation.
	HardenedOffset = 0x80000000

	// MaxIndex is the largest index before the hardening offset is applied.
	MaxIndex = HardenedOffset - 1

	// MaxDepth bounds the number of segments in a chain.
	MaxDepth = 255

	PurposeBIP44 = 44
)

// Segment is one step of a derivation chain.
type Segment struct {
	Index    uint32
	Hardened bool
}

// Raw returns the BIP-32 child number, with the hardening offset applied.
func (s Segment) Raw() uint32 {
	if s.Hardened {
		return s.Index + HardenedOffset
	}
	return s.Index
}

func (s Segment) String() string {
	if s.Hardened {
		return strconv.FormatUint(uint64(s.Index), 10) + "'"
	}
	return strconv.FormatUint(uint64(s.Index), 10)
}

// SegmentFromRaw splits a BIP-32 child number into index and hardened flag.
func SegmentFromRaw(raw uint32) Segment {
	if raw >= HardenedOffset {
		return Segment{Index: raw - HardenedOffset, Hardened: true}
	}
	return Segment{Index: raw}
}

// Chain is an ordered list of derivation segments below the master key.
type Chain []Segment

// Bip44Chain returns m/44'/coinType'/account'/internal'/index'. Every level is
// hardened so the chain is valid for both supported curves.
func Bip44Chain(coinType, account uint32, internal bool, index uint32) Chain {
	var change uint32
	if internal {
		change = 1
	}
	return Chain{
		{Index: PurposeBIP44, Hardened: true},
		{Index: coinType, Hardened: true},
		{Index: account, Hardened: true},
		{Index: change, Hardened: true},
		{Index: index, Hardened: true},
	}
}

// ParseChain parses the textual form "m/44'/4218'/0'/0'/0'". Both ' and h mark hardened segments.
func ParseChain(s string) (Chain, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return nil, &PathError{Chain: s, Segment: -1, Reason: "empty path"}
	}
	parts := strings.Split(text, "/")
	if parts[0] != "m" && parts[0] != "M" {
		return nil, &PathError{Chain: s, Segment: -1, Reason: "path must start with m"}
	}
	parts = parts[1:]
	if len(parts) > MaxDepth {
		return nil, &PathError{Chain: s, Segment: -1, Reason: fmt.Sprintf("depth %d exceeds %d", len(parts), MaxDepth)}
	}
	chain := make(Chain, 0, len(parts))
	for i, p := range parts {
		hardened := false
		if strings.HasSuffix(p, "'") || strings.HasSuffix(p, "h") || strings.HasSuffix(p, "H") {
			hardened = true
			p = p[:len(p)-1]
		}
		if p == "" {
			return nil, &PathError{Chain: s, Segment: i, Reason: "empty segment"}
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, &PathError{Chain: s, Segment: i, Reason: "not a number"}
		}
		if n > MaxIndex {
			return nil, &PathError{Chain: s, Segment: i, Reason: fmt.Sprintf("index %d exceeds %d", n, MaxIndex)}
		}
		chain = append(chain, Segment{Index: uint32(n), Hardened: hardened})
	}
	return chain, nil
}

// MustParseChain is ParseChain for constant paths; it panics on error.
func MustParseChain(s string) Chain {
	c, err := ParseChain(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Chain) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, s := range c {
		b.WriteByte('/')
		b.WriteString(s.String())
	}
	return b.String()
}

// Validate checks index bounds and depth.
func (c Chain) Validate() error {
	if len(c) > MaxDepth {
		return &PathError{Chain: c.String(), Segment: -1, Reason: fmt.Sprintf("depth %d exceeds %d", len(c), MaxDepth)}
	}
	for i, s := range c {
		if s.Index > MaxIndex {
			return &PathError{Chain: c.String(), Segment: i, Reason: fmt.Sprintf("index %d exceeds %d", s.Index, MaxIndex)}
		}
	}
	return nil
}

// Raw returns the BIP-32 child numbers of the chain.
func (c Chain) Raw() []uint32 {
	out := make([]uint32, len(c))
	for i, s := range c {
		out[i] = s.Raw()
	}
	return out
}

// ChainFromRaw rebuilds a chain from BIP-32 child numbers.
func ChainFromRaw(raw []uint32) Chain {
	if len(raw) == 0 {
		return nil
	}
	c := make(Chain, len(raw))
	for i, r := range raw {
		c[i] = SegmentFromRaw(r)
	}
	return c
}

// Equal reports whether both chains have the same segments.
func (c Chain) Equal(other Chain) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

func (c Chain) MarshalCBOR() ([]byte, error) {
	raw := c.Raw()
	return cbor.Marshal(raw)
}

func (c *Chain) UnmarshalCBOR(data []byte) error {
	var raw []uint32
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("keys: decode chain: %w", err)
	}
	*c = ChainFromRaw(raw)
	return nil
}

func (c Chain) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Raw())
}

func (c *Chain) UnmarshalJSON(data []byte) error {
	var raw []uint32
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("keys: decode chain: %w", err)
	}
	*c = ChainFromRaw(raw)
	return nil
}
