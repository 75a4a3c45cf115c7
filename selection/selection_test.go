package selection

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

const now = 1_700_000_000

var (
	ours     = ledger.Ed25519Address(fill(0x11))
	theirs   = ledger.Ed25519Address(fill(0x22))
	change   = ledger.Ed25519Address(fill(0x33))
	tokenA   = ledger.FoundryID(ledger.AccountAddress(fill(0xA1)), 1, ledger.TokenSchemeSimple)
	tokenB   = ledger.FoundryID(ledger.AccountAddress(fill(0xB1)), 1, ledger.TokenSchemeSimple)
	ourChain = keys.Bip44Chain(4218, 0, false, 0)
)

func fill(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func basicTo(addr ledger.Address, amount uint64) ledger.BasicOutput {
	return ledger.BasicOutput{
		Amount:           amount,
		UnlockConditions: ledger.UnlockConditions{ledger.AddressUnlockCondition{Address: addr}},
	}
}

func withTokens(o ledger.BasicOutput, tokens ...ledger.NativeToken) ledger.BasicOutput {
	o.NativeTokens = tokens
	return o
}

func candidateAt(i byte, o ledger.Output) tx.InputSigningData {
	return tx.InputSigningData{
		OutputID: ledger.NewOutputID(ledger.TransactionID(fill(i)), 0),
		Output:   o,
		Chain:    ourChain,
	}
}

func candidates(amounts ...uint64) []tx.InputSigningData {
	out := make([]tx.InputSigningData, len(amounts))
	for i, a := range amounts {
		out[i] = candidateAt(byte(i+1), basicTo(ours, a))
	}
	return out
}

func constraints() Constraints {
	return Constraints{
		Owned:            NewAddressSet(ours),
		Now:              now,
		RemainderAddress: change,
		Params:           ledger.DefaultProtocolParameters("testnet", "rms"),
	}
}

func selectedIDs(r *Result) []ledger.OutputID {
	ids := make([]ledger.OutputID, len(r.Inputs))
	for i, in := range r.Inputs {
		ids[i] = in.OutputID
	}
	return ids
}

func idsOf(cands []tx.InputSigningData, idx ...int) []ledger.OutputID {
	out := make([]ledger.OutputID, len(idx))
	for i, j := range idx {
		out[i] = cands[j].OutputID
	}
	ledger.SortOutputIDs(out)
	return out
}

// --- Amount selection tests ---

func TestSelect_InsufficientFunds(t *testing.T) {
	_, err := Select(candidates(250_000, 250_000), Target{Amount: 1_000_000}, constraints())
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var ife *InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.Nil(t, ife.TokenID)
	assert.Equal(t, uint64(1_000_000), ife.Required)
	assert.Equal(t, uint64(500_000), ife.Available)
}

func TestSelect_ExactAmount(t *testing.T) {
	cands := candidates(600_000, 400_000, 300_000)
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 1), selectedIDs(r))
	assert.Nil(t, r.Remainder)
	assert.Zero(t, r.FoldedAmount)
	assert.Empty(t, r.Outputs())
}

func TestSelect_SingleExactCandidate(t *testing.T) {
	cands := candidates(1_000_000)
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0), selectedIDs(r))
	assert.Nil(t, r.Remainder)
	assert.Empty(t, r.Outputs())
}

func TestSelect_Remainder(t *testing.T) {
	cands := candidates(2_000_000)
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	require.NotNil(t, r.Remainder)
	assert.Equal(t, basicTo(change, 1_000_000), r.Remainder.Output)
	assert.Equal(t, change, r.Remainder.Address)
	assert.Equal(t, ledger.Outputs{r.Remainder.Output}, r.Outputs())
}

func TestSelect_DefaultRemainderAddress(t *testing.T) {
	c := constraints()
	c.RemainderAddress = nil
	r, err := Select(candidates(2_000_000), Target{Amount: 1_000_000}, c)
	require.NoError(t, err)
	require.NotNil(t, r.Remainder)
	assert.Equal(t, ours, r.Remainder.Address)
	assert.True(t, ourChain.Equal(r.Remainder.Chain))
}

func TestSelect_FoldRemainderBelowFloor(t *testing.T) {
	c := constraints()
	c.FoldRemainder = true
	r, err := Select(candidates(1_000_000), Target{Amount: 990_000}, c)
	require.NoError(t, err)
	assert.Nil(t, r.Remainder)
	assert.Equal(t, uint64(10_000), r.FoldedAmount)
}

func TestSelect_RemainderBelowFloorFails(t *testing.T) {
	_, err := Select(candidates(1_000_000), Target{Amount: 990_000}, constraints())
	require.ErrorIs(t, err, ErrInsufficientFunds)
	var ife *InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	assert.Greater(t, ife.Required, uint64(990_000))
}

func TestSelect_RemainderFloorPullsMoreInputs(t *testing.T) {
	cands := candidates(1_000_000, 100_000)
	c := constraints()
	c.FoldRemainder = true
	r, err := Select(cands, Target{Amount: 990_000}, c)
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 1), selectedIDs(r))
	require.NotNil(t, r.Remainder)
	assert.Equal(t, uint64(110_000), r.Remainder.Output.Deposit())
	assert.Zero(t, r.FoldedAmount)
}

func TestSelect_MinimalCountLowestIndices(t *testing.T) {
	cands := candidates(100_000, 900_000, 500_000, 500_000)
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 1), selectedIDs(r))
	assert.Nil(t, r.Remainder)
}

func TestSelect_PrefersFewerInputs(t *testing.T) {
	cands := candidates(300_000, 300_000, 300_000, 1_200_000)
	c := constraints()
	r, err := Select(cands, Target{Amount: 1_000_000}, c)
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 3), selectedIDs(r))
	require.NotNil(t, r.Remainder)
	assert.Equal(t, uint64(200_000), r.Remainder.Output.Deposit())
}

func TestSelect_InputsSortedByOutputID(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(0x09, basicTo(ours, 500_000)),
		candidateAt(0x01, basicTo(ours, 500_000)),
	}
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, []ledger.OutputID{cands[1].OutputID, cands[0].OutputID}, selectedIDs(r))
}

func TestSelect_TooManyInputs(t *testing.T) {
	c := constraints()
	c.Params.MaxInputs = 2
	_, err := Select(candidates(400_000, 400_000, 400_000), Target{Amount: 1_100_000}, c)
	assert.ErrorIs(t, err, ErrTooManyInputs)
}

func TestSelect_MissingParams(t *testing.T) {
	c := constraints()
	c.Params = nil
	_, err := Select(candidates(1), Target{}, c)
	assert.ErrorIs(t, err, ErrInvalidConstraints)
}

// --- Native token tests ---

func TestSelect_TokensFewerIDsPreferred(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(1, withTokens(basicTo(ours, 500_000), ledger.NativeToken{ID: tokenA, Amount: 10}, ledger.NativeToken{ID: tokenB, Amount: 5})),
		candidateAt(2, withTokens(basicTo(ours, 500_000), ledger.NativeToken{ID: tokenA, Amount: 10})),
	}
	r, err := Select(cands, Target{Amount: 400_000, NativeTokens: ledger.NativeTokens{{ID: tokenA, Amount: 10}}}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 1), selectedIDs(r))
	require.NotNil(t, r.Remainder)
	assert.Empty(t, r.Remainder.Output.Tokens())
	assert.Equal(t, uint64(100_000), r.Remainder.Output.Deposit())
}

func TestSelect_TokenOverlapPreferred(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(1, withTokens(basicTo(ours, 600_000), ledger.NativeToken{ID: tokenA, Amount: 1})),
		candidateAt(2, withTokens(basicTo(ours, 600_000), ledger.NativeToken{ID: tokenB, Amount: 1})),
		candidateAt(3, withTokens(basicTo(ours, 600_000), ledger.NativeToken{ID: tokenA, Amount: 1})),
	}
	r, err := Select(cands, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 2), selectedIDs(r))
	require.NotNil(t, r.Remainder)
	assert.Equal(t, ledger.NativeTokens{{ID: tokenA, Amount: 2}}, r.Remainder.Output.Tokens())
}

func TestSelect_TokenRemainder(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(1, withTokens(basicTo(ours, 500_000), ledger.NativeToken{ID: tokenA, Amount: 30})),
	}
	r, err := Select(cands, Target{Amount: 100_000, NativeTokens: ledger.NativeTokens{{ID: tokenA, Amount: 10}}}, constraints())
	require.NoError(t, err)
	require.NotNil(t, r.Remainder)
	assert.Equal(t, ledger.NativeTokens{{ID: tokenA, Amount: 20}}, r.Remainder.Output.Tokens())
}

func TestSelect_TokenRemainderCannotFold(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(1, withTokens(basicTo(ours, 1_000_000), ledger.NativeToken{ID: tokenA, Amount: 30})),
	}
	c := constraints()
	c.FoldRemainder = true
	_, err := Select(cands, Target{Amount: 990_000, NativeTokens: ledger.NativeTokens{{ID: tokenA, Amount: 10}}}, c)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestSelect_InsufficientToken(t *testing.T) {
	cands := []tx.InputSigningData{
		candidateAt(1, withTokens(basicTo(ours, 500_000), ledger.NativeToken{ID: tokenA, Amount: 3})),
		candidateAt(2, withTokens(basicTo(ours, 500_000), ledger.NativeToken{ID: tokenA, Amount: 4})),
	}
	_, err := Select(cands, Target{NativeTokens: ledger.NativeTokens{{ID: tokenA, Amount: 10}}}, constraints())
	var ife *InsufficientFundsError
	require.True(t, errors.As(err, &ife))
	require.NotNil(t, ife.TokenID)
	assert.Equal(t, tokenA, *ife.TokenID)
	assert.Equal(t, uint64(10), ife.Required)
	assert.Equal(t, uint64(7), ife.Available)
}

func TestSelector_AvailableSaturates(t *testing.T) {
	top := ^uint64(0)
	s := &selector{viable: []*candidate{
		{index: 0, amount: top, tokens: ledger.TokenBalance{tokenA: top}},
		{index: 1, amount: 5, tokens: ledger.TokenBalance{tokenA: 5, tokenB: 7}},
	}}
	amount, toks := s.available()
	assert.Equal(t, top, amount)
	assert.Equal(t, top, toks[tokenA])
	assert.Equal(t, uint64(7), toks[tokenB])
}

// --- Filtering tests ---

func TestSelect_Filtering(t *testing.T) {
	timelocked := basicTo(ours, 1_000_000)
	timelocked.UnlockConditions = append(timelocked.UnlockConditions, ledger.TimelockUnlockCondition{UnixTime: now + 60})
	withReturn := basicTo(ours, 1_000_000)
	withReturn.UnlockConditions = append(withReturn.UnlockConditions,
		ledger.StorageDepositReturnUnlockCondition{ReturnAddress: theirs, Amount: 50_000})

	tests := []struct {
		name   string
		output ledger.Output
		allow  func(*Constraints)
	}{
		{"foreign owner", basicTo(theirs, 1_000_000), nil},
		{"timelocked", timelocked, func(c *Constraints) { c.AllowTimelocked = true }},
		{"storage deposit return", withReturn, func(c *Constraints) { c.AllowStorageDepositReturn = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := []tx.InputSigningData{candidateAt(1, tt.output)}
			_, err := Select(cands, Target{Amount: 900_000}, constraints())
			assert.ErrorIs(t, err, ErrNoViableInputs)

			if tt.allow == nil {
				return
			}
			c := constraints()
			tt.allow(&c)
			r, err := Select(cands, Target{Amount: 900_000}, c)
			require.NoError(t, err)
			assert.Len(t, r.Inputs, 1)
		})
	}
}

func TestSelect_StorageDepositReturn(t *testing.T) {
	o := basicTo(ours, 1_000_000)
	o.UnlockConditions = append(o.UnlockConditions,
		ledger.StorageDepositReturnUnlockCondition{ReturnAddress: theirs, Amount: 50_000})
	other := basicTo(ours, 1_000_000)
	other.UnlockConditions = append(other.UnlockConditions,
		ledger.StorageDepositReturnUnlockCondition{ReturnAddress: theirs, Amount: 60_000})
	cands := []tx.InputSigningData{candidateAt(1, o), candidateAt(2, other)}

	c := constraints()
	c.AllowStorageDepositReturn = true
	r, err := Select(cands, Target{Amount: 1_890_000}, c)
	require.NoError(t, err)
	assert.Len(t, r.Inputs, 2)
	assert.Nil(t, r.Remainder)
	assert.Equal(t, ledger.Outputs{basicTo(theirs, 110_000)}, r.StorageDepositReturns)
}

func TestSelect_ExpiredOutputOwnedByReturnAddress(t *testing.T) {
	o := basicTo(theirs, 1_000_000)
	o.UnlockConditions = append(o.UnlockConditions, ledger.ExpirationUnlockCondition{ReturnAddress: ours, UnixTime: now - 1})
	r, err := Select([]tx.InputSigningData{candidateAt(1, o)}, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	assert.Len(t, r.Inputs, 1)
}

// --- Mandatory and custom input tests ---

func accountCandidate(i byte, amount uint64) tx.InputSigningData {
	return candidateAt(i, ledger.AccountOutput{
		Amount:    amount,
		AccountID: ledger.AccountID(fill(0xAC)),
		UnlockConditions: ledger.UnlockConditions{
			ledger.StateControllerAddressUnlockCondition{Address: ours},
			ledger.GovernorAddressUnlockCondition{Address: ours},
		},
	})
}

func TestSelect_MandatoryChainUnlocksOwnedOutputs(t *testing.T) {
	chainOwned := candidateAt(1, basicTo(ledger.AccountAddress(fill(0xAC)), 500_000))
	chainOwned.Chain = nil
	cands := []tx.InputSigningData{
		chainOwned,
		accountCandidate(2, 100_000),
		candidateAt(3, basicTo(ours, 2_000_000)),
	}

	c := constraints()
	c.MandatoryInputs = []ledger.OutputID{cands[1].OutputID}
	r, err := Select(cands, Target{Amount: 600_000}, c)
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 1), selectedIDs(r))

	// Without the account the output it owns is out of reach.
	r, err = Select(cands, Target{Amount: 600_000}, constraints())
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 2), selectedIDs(r))
}

func TestSelect_NonBasicNeverAutomatic(t *testing.T) {
	_, err := Select([]tx.InputSigningData{accountCandidate(1, 1_000_000)}, Target{Amount: 1}, constraints())
	assert.ErrorIs(t, err, ErrNoViableInputs)
}

func TestSelect_MandatoryNotFound(t *testing.T) {
	c := constraints()
	c.MandatoryInputs = []ledger.OutputID{ledger.NewOutputID(ledger.TransactionID(fill(0xEE)), 3)}
	_, err := Select(candidates(1_000_000), Target{Amount: 1}, c)
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestSelect_MandatoryNotViable(t *testing.T) {
	cands := []tx.InputSigningData{candidateAt(1, basicTo(theirs, 1_000_000)), candidateAt(2, basicTo(ours, 1_000_000))}
	c := constraints()
	c.MandatoryInputs = []ledger.OutputID{cands[0].OutputID}
	_, err := Select(cands, Target{Amount: 1_000_000}, c)
	assert.ErrorIs(t, err, ErrNoViableInputs)
}

func TestSelect_CustomInputsAreExact(t *testing.T) {
	cands := candidates(300_000, 2_000_000, 800_000)
	c := constraints()
	c.CustomInputs = []ledger.OutputID{cands[0].OutputID, cands[2].OutputID}

	r, err := Select(cands, Target{Amount: 1_000_000}, c)
	require.NoError(t, err)
	assert.Equal(t, idsOf(cands, 0, 2), selectedIDs(r))
	require.NotNil(t, r.Remainder)
	assert.Equal(t, uint64(100_000), r.Remainder.Output.Deposit())

	_, err = Select(cands, Target{Amount: 1_200_000}, c)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

// --- Pool tests ---

func TestPool_ReserveAllOrNothing(t *testing.T) {
	cands := candidates(1, 2, 3)
	p := NewPool(cands...)

	require.NoError(t, p.Reserve(cands[0].OutputID))
	err := p.Reserve(cands[1].OutputID, cands[0].OutputID)
	assert.ErrorIs(t, err, ErrAlreadyReserved)
	assert.Equal(t, []ledger.OutputID{cands[0].OutputID}, p.Reserved())

	err = p.Reserve(cands[2].OutputID, ledger.OutputID{})
	assert.ErrorIs(t, err, ErrUnknownOutput)
	assert.Equal(t, []ledger.OutputID{cands[0].OutputID}, p.Reserved())
}

func TestPool_SnapshotExcludesReserved(t *testing.T) {
	cands := candidates(1_000, 2_000)
	p := NewPool(cands...)
	require.NoError(t, p.Reserve(cands[0].OutputID))

	snap, err := p.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, cands[1].OutputID, snap[0].OutputID)

	amount, _, err := p.Balance()
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000), amount)

	p.Release(cands[0].OutputID)
	snap, err = p.Snapshot()
	require.NoError(t, err)
	assert.Len(t, snap, 2)
}

func TestPool_InputsIncludeReserved(t *testing.T) {
	cands := candidates(1_000, 2_000)
	p := NewPool(cands...)
	require.NoError(t, p.Reserve(cands[1].OutputID))

	all, err := p.Inputs()
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []ledger.OutputID{all[0].OutputID, all[1].OutputID}
	want := []ledger.OutputID{cands[0].OutputID, cands[1].OutputID}
	ledger.SortOutputIDs(want)
	assert.Equal(t, want, ids)
	assert.Equal(t, []ledger.OutputID{cands[1].OutputID}, p.Reserved())
}

func TestPool_SnapshotIsDeepCopy(t *testing.T) {
	cands := candidates(1_000)
	p := NewPool(cands...)

	snap, err := p.Snapshot()
	require.NoError(t, err)
	snap[0].Chain[0].Index = 99
	bo := snap[0].Output.(ledger.BasicOutput)
	bo.UnlockConditions[0] = ledger.AddressUnlockCondition{Address: theirs}

	again, err := p.Snapshot()
	require.NoError(t, err)
	assert.True(t, ourChain.Equal(again[0].Chain))
	assert.Equal(t, basicTo(ours, 1_000), again[0].Output)
}

func TestPool_MarkSpentAndRefresh(t *testing.T) {
	cands := candidates(1_000, 2_000)
	p := NewPool(cands...)
	require.NoError(t, p.Reserve(cands[0].OutputID))

	refreshed := cands[0]
	refreshed.Metadata.BookedIndex = 7
	p.Add(refreshed)
	assert.Equal(t, []ledger.OutputID{cands[0].OutputID}, p.Reserved())

	p.MarkSpent(cands[0].OutputID)
	assert.Equal(t, 1, p.Len())
	assert.Empty(t, p.Reserved())
}

func TestPool_ConcurrentReserve(t *testing.T) {
	cands := candidates(1_000)
	p := NewPool(cands...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.Reserve(cands[0].OutputID) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestPool_SelectFromSnapshot(t *testing.T) {
	cands := candidates(600_000, 400_000, 700_000)
	p := NewPool(cands...)
	require.NoError(t, p.Reserve(cands[0].OutputID))

	snap, err := p.Snapshot()
	require.NoError(t, err)
	r, err := Select(snap, Target{Amount: 1_000_000}, constraints())
	require.NoError(t, err)
	ids := selectedIDs(r)
	assert.Equal(t, idsOf(cands, 1, 2), ids)
	require.NoError(t, p.Reserve(ids...))
}
