package ledger

import (
	"fmt"
)

// EssenceTypeTransaction tags the transaction essence encoding.
const EssenceTypeTransaction uint8 = 1

// InputTypeUTXO tags the encoding of a consumed output reference.
const InputTypeUTXO uint8 = 0

// InputsCommitment binds the exact consumed outputs into the signed essence.
type InputsCommitment [DigestLength]byte

// ComputeInputsCommitment hashes the concatenated hashes of the consumed
// outputs' canonical bytes, in input order.
func ComputeInputsCommitment(outputs []Output) (InputsCommitment, error) {
	parts := make([][]byte, 0, len(outputs))
	for i, o := range outputs {
		data, err := EncodeOutput(o)
		if err != nil {
			return InputsCommitment{}, fmt.Errorf("input %d: %w", i, err)
		}
		d := Blake2b256(data)
		parts = append(parts, d[:])
	}
	return InputsCommitment(Blake2b256(parts...)), nil
}

// TransactionEssence is the signed part of a transaction.
type TransactionEssence struct {
	NetworkID        uint64
	Inputs           []OutputID
	InputsCommitment InputsCommitment
	Outputs          Outputs
	Payload          *TaggedDataPayload
}

type utxoInput OutputID

func (i utxoInput) MarshalCBOR() ([]byte, error) {
	id := OutputID(i)
	txID := id.TransactionID()
	return encodeList(InputTypeUTXO, txID[:], id.Index())
}

func (e *TransactionEssence) MarshalCBOR() ([]byte, error) {
	inputs := make([]utxoInput, 0, len(e.Inputs))
	for _, id := range e.Inputs {
		inputs = append(inputs, utxoInput(id))
	}
	var payload any
	if e.Payload != nil {
		payload = e.Payload
	}
	return encodeList(
		EssenceTypeTransaction,
		e.NetworkID,
		inputs,
		e.InputsCommitment[:],
		nonNil(e.Outputs),
		payload,
	)
}

// Bytes returns the canonical encoding of the essence.
func (e *TransactionEssence) Bytes() ([]byte, error) {
	return Encode(e)
}

func (e *TransactionEssence) UnmarshalCBOR(data []byte) error {
	decoded, err := decodeEssence(data)
	if err != nil {
		return err
	}
	*e = *decoded
	return nil
}

// DecodeEssence parses the canonical bytes of an essence.
func DecodeEssence(data []byte) (*TransactionEssence, error) {
	return decodeEssence(data)
}

func decodeEssence(raw RawMessage) (*TransactionEssence, error) {
	items, err := decodeList(raw, 6, "essence")
	if err != nil {
		return nil, err
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return nil, err
	}
	if tag != EssenceTypeTransaction {
		return nil, fmt.Errorf("%w: essence %d", ErrUnknownType, tag)
	}
	e := &TransactionEssence{}
	if err := Decode(items[1], &e.NetworkID); err != nil {
		return nil, err
	}
	rawInputs, err := decodeRawList(items[2], "inputs")
	if err != nil {
		return nil, err
	}
	for _, ri := range rawInputs {
		id, err := decodeInput(ri)
		if err != nil {
			return nil, err
		}
		e.Inputs = append(e.Inputs, id)
	}
	if err := decodeFixed(items[3], e.InputsCommitment[:], "inputs commitment"); err != nil {
		return nil, err
	}
	if e.Outputs, err = decodeOutputs(items[4]); err != nil {
		return nil, err
	}
	if !isNull(items[5]) {
		p, err := decodeTaggedData(items[5])
		if err != nil {
			return nil, err
		}
		e.Payload = p
	}
	return e, nil
}

func decodeInput(raw RawMessage) (OutputID, error) {
	items, err := decodeList(raw, 3, "input")
	if err != nil {
		return OutputID{}, err
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return OutputID{}, err
	}
	if tag != InputTypeUTXO {
		return OutputID{}, fmt.Errorf("%w: input %d", ErrUnknownType, tag)
	}
	var txID TransactionID
	if err := decodeFixed(items[1], txID[:], "transaction id"); err != nil {
		return OutputID{}, err
	}
	var index uint16
	if err := Decode(items[2], &index); err != nil {
		return OutputID{}, err
	}
	return NewOutputID(txID, index), nil
}

func isNull(raw RawMessage) bool {
	return len(raw) == 1 && (raw[0] == 0xf6 || raw[0] == 0xf7)
}
