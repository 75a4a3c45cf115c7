package tx

import (
	"fmt"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
)

// InputSigningData is everything needed to consume and sign for one output.
type InputSigningData struct {
	OutputID ledger.OutputID
	Output   ledger.Output
	Metadata ledger.OutputMetadata
	// Chain locates the key that owns the output. It is empty for outputs
	// unlocked through an account or NFT chain.
	Chain keys.Chain
}

func (in InputSigningData) MarshalCBOR() ([]byte, error) {
	if in.Output == nil {
		return nil, fmt.Errorf("%w: input %s has no output", ErrNilParam, in.OutputID)
	}
	return ledger.Encode([]any{in.OutputID[:], in.Output, in.Metadata, in.Chain})
}

func (in *InputSigningData) UnmarshalCBOR(data []byte) error {
	var items []ledger.RawMessage
	if err := ledger.Decode(data, &items); err != nil {
		return fmt.Errorf("tx: decode input: %w", err)
	}
	if len(items) != 4 {
		return fmt.Errorf("%w: input has %d fields", ledger.ErrMalformed, len(items))
	}
	var out InputSigningData
	var id []byte
	if err := ledger.Decode(items[0], &id); err != nil {
		return err
	}
	if len(id) != ledger.OutputIDLength {
		return fmt.Errorf("%w: output id must be %d bytes", ledger.ErrMalformed, ledger.OutputIDLength)
	}
	copy(out.OutputID[:], id)
	o, err := ledger.DecodeOutput(items[1])
	if err != nil {
		return err
	}
	out.Output = o
	if err := ledger.Decode(items[2], &out.Metadata); err != nil {
		return err
	}
	if err := ledger.Decode(items[3], &out.Chain); err != nil {
		return err
	}
	*in = out
	return nil
}

// RemainderData describes the change output of a prepared transaction.
type RemainderData struct {
	Output  ledger.Output
	Chain   keys.Chain
	Address ledger.Address
}

func (r RemainderData) MarshalCBOR() ([]byte, error) {
	if r.Output == nil || r.Address == nil {
		return nil, fmt.Errorf("%w: incomplete remainder", ErrNilParam)
	}
	return ledger.Encode([]any{r.Output, r.Chain, r.Address})
}

func (r *RemainderData) UnmarshalCBOR(data []byte) error {
	var items []ledger.RawMessage
	if err := ledger.Decode(data, &items); err != nil {
		return fmt.Errorf("tx: decode remainder: %w", err)
	}
	if len(items) != 3 {
		return fmt.Errorf("%w: remainder has %d fields", ledger.ErrMalformed, len(items))
	}
	var out RemainderData
	o, err := ledger.DecodeOutput(items[0])
	if err != nil {
		return err
	}
	out.Output = o
	if err := ledger.Decode(items[1], &out.Chain); err != nil {
		return err
	}
	addr, err := ledger.DecodeAddress(items[2])
	if err != nil {
		return err
	}
	out.Address = addr
	*r = out
	return nil
}

// owners resolves the unlocking address of every input at unixTime.
func owners(inputs []InputSigningData, unixTime uint64) ([]ledger.Address, error) {
	out := make([]ledger.Address, len(inputs))
	for i, in := range inputs {
		if in.Output == nil {
			return nil, fmt.Errorf("%w: input %s has no output", ErrNilParam, in.OutputID)
		}
		addr, err := ledger.OwnerAddress(in.Output, unixTime)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in.OutputID, err)
		}
		out[i] = addr
	}
	return out, nil
}
