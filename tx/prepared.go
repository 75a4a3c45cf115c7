package tx

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bitfsorg/libledger-go/ledger"
)

// PreparedTransactionData is a built but unsigned transaction. It carries
// everything an offline signer needs besides the root secret.
type PreparedTransactionData struct {
	Essence   *ledger.TransactionEssence
	Inputs    []InputSigningData
	Remainder *RemainderData
	// Timestamp is the unix time ownership was resolved at.
	Timestamp uint64
}

// Prepare builds the essence and wraps it with its signing data.
func Prepare(params *ledger.ProtocolParameters, inputs []InputSigningData, outputs ledger.Outputs, payload *ledger.TaggedDataPayload, remainder *RemainderData, unixTime uint64) (*PreparedTransactionData, error) {
	essence, ordered, err := Build(params, inputs, outputs, payload, unixTime)
	if err != nil {
		return nil, err
	}
	return &PreparedTransactionData{
		Essence:   essence,
		Inputs:    ordered,
		Remainder: remainder,
		Timestamp: unixTime,
	}, nil
}

// EssenceHash returns the digest the signatures of p commit to.
func (p *PreparedTransactionData) EssenceHash() (ledger.Digest, error) {
	return HashEssence(p.Essence)
}

// Validate checks that the inputs match the essence and its inputs commitment.
func (p *PreparedTransactionData) Validate() error {
	if p.Essence == nil {
		return fmt.Errorf("%w: missing essence", ErrInvalidPrepared)
	}
	if len(p.Inputs) != len(p.Essence.Inputs) {
		return fmt.Errorf("%w: %d inputs for %d essence inputs", ErrInvalidPrepared, len(p.Inputs), len(p.Essence.Inputs))
	}
	consumed := make([]ledger.Output, len(p.Inputs))
	for i, in := range p.Inputs {
		if in.OutputID != p.Essence.Inputs[i] {
			return fmt.Errorf("%w: input %d is %s, essence has %s", ErrInvalidPrepared, i, in.OutputID, p.Essence.Inputs[i])
		}
		if in.Output == nil {
			return fmt.Errorf("%w: input %s has no output", ErrInvalidPrepared, in.OutputID)
		}
		consumed[i] = in.Output
	}
	commitment, err := ledger.ComputeInputsCommitment(consumed)
	if err != nil {
		return err
	}
	if commitment != p.Essence.InputsCommitment {
		return fmt.Errorf("%w: inputs commitment mismatch", ErrInvalidPrepared)
	}
	return nil
}

func (p *PreparedTransactionData) MarshalCBOR() ([]byte, error) {
	if p.Essence == nil {
		return nil, fmt.Errorf("%w: missing essence", ErrNilParam)
	}
	var remainder any
	if p.Remainder != nil {
		remainder = p.Remainder
	}
	inputs := p.Inputs
	if inputs == nil {
		inputs = []InputSigningData{}
	}
	return ledger.Encode([]any{p.Essence, inputs, remainder, p.Timestamp})
}

func (p *PreparedTransactionData) UnmarshalCBOR(data []byte) error {
	var items []ledger.RawMessage
	if err := ledger.Decode(data, &items); err != nil {
		return fmt.Errorf("tx: decode prepared: %w", err)
	}
	if len(items) != 4 {
		return fmt.Errorf("%w: prepared transaction has %d fields", ledger.ErrMalformed, len(items))
	}
	essence, err := ledger.DecodeEssence(items[0])
	if err != nil {
		return err
	}
	out := PreparedTransactionData{Essence: essence}
	if err := ledger.Decode(items[1], &out.Inputs); err != nil {
		return err
	}
	if len(out.Inputs) == 0 {
		out.Inputs = nil
	}
	var remainder *RemainderData
	if err := ledger.Decode(items[2], &remainder); err != nil {
		return err
	}
	out.Remainder = remainder
	if err := ledger.Decode(items[3], &out.Timestamp); err != nil {
		return err
	}
	*p = out
	return nil
}

// Bytes returns the canonical encoding.
func (p *PreparedTransactionData) Bytes() ([]byte, error) {
	return ledger.Encode(p)
}

// Hex returns the encoding as a 0x-prefixed hex string.
func (p *PreparedTransactionData) Hex() (string, error) {
	data, err := p.Bytes()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(data), nil
}

// PreparedFromBytes decodes prepared data and checks its consistency.
func PreparedFromBytes(data []byte) (*PreparedTransactionData, error) {
	var p PreparedTransactionData
	if err := ledger.Decode(data, &p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// PreparedFromHex decodes the form produced by Hex.
func PreparedFromHex(s string) (*PreparedTransactionData, error) {
	data, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	return PreparedFromBytes(data)
}

// SignedTransactionData is a fully unlocked transaction with the inputs it consumes.
type SignedTransactionData struct {
	Payload *ledger.TransactionPayload
	Inputs  []InputSigningData
}

func (s *SignedTransactionData) MarshalCBOR() ([]byte, error) {
	if s.Payload == nil {
		return nil, fmt.Errorf("%w: missing payload", ErrNilParam)
	}
	inputs := s.Inputs
	if inputs == nil {
		inputs = []InputSigningData{}
	}
	return ledger.Encode([]any{s.Payload, inputs})
}

func (s *SignedTransactionData) UnmarshalCBOR(data []byte) error {
	var items []ledger.RawMessage
	if err := ledger.Decode(data, &items); err != nil {
		return fmt.Errorf("tx: decode signed: %w", err)
	}
	if len(items) != 2 {
		return fmt.Errorf("%w: signed transaction has %d fields", ledger.ErrMalformed, len(items))
	}
	payload, err := ledger.DecodeTransactionPayload(items[0])
	if err != nil {
		return err
	}
	out := SignedTransactionData{Payload: payload}
	if err := ledger.Decode(items[1], &out.Inputs); err != nil {
		return err
	}
	if len(out.Inputs) == 0 {
		out.Inputs = nil
	}
	*s = out
	return nil
}

// Bytes returns the canonical encoding.
func (s *SignedTransactionData) Bytes() ([]byte, error) {
	return ledger.Encode(s)
}

// Hex returns the encoding as a 0x-prefixed hex string.
func (s *SignedTransactionData) Hex() (string, error) {
	data, err := s.Bytes()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(data), nil
}

// TransactionID returns the id the network will assign to the payload.
func (s *SignedTransactionData) TransactionID() (ledger.TransactionID, error) {
	if s.Payload == nil {
		return ledger.TransactionID{}, ErrNilParam
	}
	return s.Payload.ID()
}

// EssenceHash returns the digest of the signed essence. It equals the
// EssenceHash of the prepared data the payload was signed from.
func (s *SignedTransactionData) EssenceHash() (ledger.Digest, error) {
	if s.Payload == nil {
		return ledger.Digest{}, ErrNilParam
	}
	return HashEssence(s.Payload.Essence)
}

// SignedFromBytes decodes signed transaction data.
func SignedFromBytes(data []byte) (*SignedTransactionData, error) {
	var s SignedTransactionData
	if err := ledger.Decode(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SignedFromHex decodes the form produced by SignedTransactionData.Hex.
func SignedFromHex(s string) (*SignedTransactionData, error) {
	data, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	return SignedFromBytes(data)
}

func decodeHex(s string) ([]byte, error) {
	data, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrMalformed, err)
	}
	return data, nil
}
