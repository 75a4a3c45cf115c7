package ledger

import "fmt"

// Payload type tags.
const (
	PayloadTaggedData  uint8 = 5
	PayloadTransaction uint8 = 6
)

const (
	MaxTaggedDataTagLength  = 64
	MaxTaggedDataDataLength = 8192
)

// TaggedDataPayload is an optional indexed blob attached to an essence.
type TaggedDataPayload struct {
	Tag  []byte
	Data []byte
}

func (p *TaggedDataPayload) MarshalCBOR() ([]byte, error) {
	return encodeList(PayloadTaggedData, nonNil(p.Tag), nonNil(p.Data))
}

// Validate checks the tag and data length limits.
func (p *TaggedDataPayload) Validate() error {
	if len(p.Tag) > MaxTaggedDataTagLength {
		return fmt.Errorf("%w: tag length %d", ErrInvalidPayload, len(p.Tag))
	}
	if len(p.Data) > MaxTaggedDataDataLength {
		return fmt.Errorf("%w: data length %d", ErrInvalidPayload, len(p.Data))
	}
	return nil
}

func decodeTaggedData(raw RawMessage) (*TaggedDataPayload, error) {
	items, err := decodeList(raw, 3, "tagged data")
	if err != nil {
		return nil, err
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return nil, err
	}
	if tag != PayloadTaggedData {
		return nil, fmt.Errorf("%w: payload %d", ErrUnknownType, tag)
	}
	p := &TaggedDataPayload{}
	if err := Decode(items[1], &p.Tag); err != nil {
		return nil, err
	}
	if err := Decode(items[2], &p.Data); err != nil {
		return nil, err
	}
	p.Tag = emptyToNil(p.Tag)
	p.Data = emptyToNil(p.Data)
	return p, nil
}

// TransactionPayload is an essence together with the unlocks for its inputs.
type TransactionPayload struct {
	Essence *TransactionEssence
	Unlocks Unlocks
}

func (t *TransactionPayload) MarshalCBOR() ([]byte, error) {
	if t.Essence == nil {
		return nil, fmt.Errorf("%w: transaction without essence", ErrInvalidPayload)
	}
	return encodeList(PayloadTransaction, t.Essence, nonNil(t.Unlocks))
}

func (t *TransactionPayload) UnmarshalCBOR(data []byte) error {
	decoded, err := DecodeTransactionPayload(data)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// Bytes returns the canonical encoding of the transaction.
func (t *TransactionPayload) Bytes() ([]byte, error) {
	return Encode(t)
}

// ID returns the BLAKE2b-256 hash of the canonical transaction bytes.
func (t *TransactionPayload) ID() (TransactionID, error) {
	data, err := t.Bytes()
	if err != nil {
		return TransactionID{}, err
	}
	return TransactionID(Blake2b256(data)), nil
}

// Validate checks that there is exactly one well-formed unlock per input.
func (t *TransactionPayload) Validate() error {
	if t.Essence == nil {
		return fmt.Errorf("%w: transaction without essence", ErrInvalidPayload)
	}
	if len(t.Unlocks) != len(t.Essence.Inputs) {
		return fmt.Errorf("%w: %d unlocks for %d inputs", ErrInvalidUnlock, len(t.Unlocks), len(t.Essence.Inputs))
	}
	if t.Essence.Payload != nil {
		if err := t.Essence.Payload.Validate(); err != nil {
			return err
		}
	}
	return t.Unlocks.Validate()
}

// DecodeTransactionPayload parses the canonical bytes of a transaction.
func DecodeTransactionPayload(data []byte) (*TransactionPayload, error) {
	items, err := decodeList(data, 3, "transaction")
	if err != nil {
		return nil, err
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return nil, err
	}
	if tag != PayloadTransaction {
		return nil, fmt.Errorf("%w: payload %d", ErrUnknownType, tag)
	}
	essence, err := decodeEssence(items[1])
	if err != nil {
		return nil, err
	}
	unlocks, err := decodeUnlocks(items[2])
	if err != nil {
		return nil, err
	}
	return &TransactionPayload{Essence: essence, Unlocks: unlocks}, nil
}

// InclusionState is the ledger state of a submitted transaction as reported by a node.
type InclusionState uint8

const (
	InclusionPending InclusionState = iota
	InclusionIncluded
	InclusionConflicting
)

func (s InclusionState) String() string {
	switch s {
	case InclusionPending:
		return "pending"
	case InclusionIncluded:
		return "included"
	case InclusionConflicting:
		return "conflicting"
	default:
		return fmt.Sprintf("inclusion(%d)", uint8(s))
	}
}

// ParseInclusionState maps the textual form back to an InclusionState.
func ParseInclusionState(s string) (InclusionState, error) {
	switch s {
	case "pending", "":
		return InclusionPending, nil
	case "included":
		return InclusionIncluded, nil
	case "conflicting":
		return InclusionConflicting, nil
	default:
		return 0, fmt.Errorf("%w: inclusion state %q", ErrUnknownType, s)
	}
}
