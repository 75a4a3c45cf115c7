package tx

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/bitfsorg/libledger-go/ledger"
)

// Build assembles a balanced essence from inputs and outputs.
//
// Inputs are ordered by output id, except that an input owned by an account
// or NFT address is placed directly after the input that produces that chain,
// so every chain unlock references an earlier index. The returned inputs are
// in essence order. Outputs keep the caller's order. Build never adjusts
// amounts: any imbalance of the base coin or a native token is an
// *UnbalancedError.
func Build(params *ledger.ProtocolParameters, inputs []InputSigningData, outputs ledger.Outputs, payload *ledger.TaggedDataPayload, unixTime uint64) (*ledger.TransactionEssence, []InputSigningData, error) {
	if params == nil {
		return nil, nil, ErrNilParam
	}
	if len(inputs) == 0 {
		return nil, nil, ErrNoInputs
	}
	if len(outputs) == 0 {
		return nil, nil, ErrNoOutputs
	}
	if len(inputs) > params.MaxInputs {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrTooManyInputs, len(inputs), params.MaxInputs)
	}
	if len(outputs) > params.MaxOutputs {
		return nil, nil, fmt.Errorf("%w: %d > %d", ErrTooManyOutputs, len(outputs), params.MaxOutputs)
	}
	for i, o := range outputs {
		if o == nil {
			return nil, nil, fmt.Errorf("%w: output %d", ErrNilParam, i)
		}
		if err := o.Validate(); err != nil {
			return nil, nil, fmt.Errorf("output %d: %w", i, err)
		}
	}
	if payload != nil {
		if err := payload.Validate(); err != nil {
			return nil, nil, err
		}
	}

	ordered, err := orderInputs(inputs, unixTime)
	if err != nil {
		return nil, nil, err
	}
	consumed := make([]ledger.Output, len(ordered))
	ids := make([]ledger.OutputID, len(ordered))
	for i, in := range ordered {
		consumed[i] = in.Output
		ids[i] = in.OutputID
	}
	if err := checkBalance(consumed, outputs); err != nil {
		return nil, nil, err
	}
	commitment, err := ledger.ComputeInputsCommitment(consumed)
	if err != nil {
		return nil, nil, err
	}
	return &ledger.TransactionEssence{
		NetworkID:        params.NetworkID(),
		Inputs:           ids,
		InputsCommitment: commitment,
		Outputs:          outputs,
		Payload:          payload,
	}, ordered, nil
}

// orderInputs sorts inputs canonically and hangs chain-owned inputs behind
// the input producing their chain.
func orderInputs(inputs []InputSigningData, unixTime uint64) ([]InputSigningData, error) {
	sorted := make([]InputSigningData, len(inputs))
	copy(sorted, inputs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OutputID.Compare(sorted[j].OutputID) < 0
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i].OutputID == sorted[i-1].OutputID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInput, sorted[i].OutputID)
		}
	}

	owner, err := owners(sorted, unixTime)
	if err != nil {
		return nil, err
	}
	producer := make(map[ledger.AddressKey]int)
	for i, in := range sorted {
		if addr, ok := ledger.ChainAddress(in.Output, in.OutputID); ok {
			producer[addr.Key()] = i
		}
	}

	// dependents[p] lists, in canonical order, the inputs owned by the chain p produces.
	dependents := make(map[int][]int)
	var roots []int
	for i := range sorted {
		if owner[i].Type() == ledger.AddressEd25519 {
			roots = append(roots, i)
			continue
		}
		p, ok := producer[owner[i].Key()]
		if !ok {
			return nil, fmt.Errorf("%w: input %s is owned by %s", ErrUnlockReference, sorted[i].OutputID, owner[i])
		}
		dependents[p] = append(dependents[p], i)
	}

	out := make([]InputSigningData, 0, len(sorted))
	var emit func(i int)
	emit = func(i int) {
		out = append(out, sorted[i])
		for _, d := range dependents[i] {
			emit(d)
		}
	}
	for _, r := range roots {
		emit(r)
	}
	if len(out) != len(sorted) {
		return nil, fmt.Errorf("%w: chain ownership forms a cycle", ErrUnlockReference)
	}
	return out, nil
}

// checkBalance verifies conservation of the base coin and of every native
// token, allowing foundries to mint or melt their own token.
func checkBalance(consumed []ledger.Output, created ledger.Outputs) error {
	var in, out uint64
	inTokens, outTokens := ledger.TokenBalance{}, ledger.TokenBalance{}
	supplyIn, supplyOut := ledger.TokenBalance{}, ledger.TokenBalance{}

	sum := func(total *uint64, tokens, supply ledger.TokenBalance, list []ledger.Output) error {
		for _, o := range list {
			s, carry := bits.Add64(*total, o.Deposit(), 0)
			if carry != 0 {
				return ledger.ErrAmountOverflow
			}
			*total = s
			for _, t := range o.Tokens() {
				if err := tokens.Add(t.ID, t.Amount); err != nil {
					return err
				}
			}
			if f, ok := o.(ledger.FoundryOutput); ok {
				id, err := f.FoundryID()
				if err != nil {
					return err
				}
				if err := supply.Add(id, f.TokenScheme.CirculatingSupply()); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := sum(&in, inTokens, supplyIn, consumed); err != nil {
		return err
	}
	if err := sum(&out, outTokens, supplyOut, created); err != nil {
		return err
	}
	if in != out {
		return &UnbalancedError{In: in, Out: out}
	}

	// Minting adds to the input side, melting to the output side.
	touched := ledger.TokenBalance{}
	for _, b := range []ledger.TokenBalance{inTokens, outTokens, supplyIn, supplyOut} {
		for id := range b {
			touched[id] = 1
		}
	}
	for _, id := range touched.IDs() {
		tin, tout := inTokens[id], outTokens[id]
		if supplyOut[id] > supplyIn[id] {
			minted := supplyOut[id] - supplyIn[id]
			s, carry := bits.Add64(tin, minted, 0)
			if carry != 0 {
				return ledger.ErrAmountOverflow
			}
			tin = s
		} else {
			melted := supplyIn[id] - supplyOut[id]
			s, carry := bits.Add64(tout, melted, 0)
			if carry != 0 {
				return ledger.ErrAmountOverflow
			}
			tout = s
		}
		if tin != tout {
			return &UnbalancedError{TokenID: &id, In: inTokens[id], Out: outTokens[id]}
		}
	}
	return nil
}
