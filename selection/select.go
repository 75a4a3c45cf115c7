// Package selection picks the unspent outputs that fund a transaction and
// tracks which outputs are held by preparations in flight.
package selection

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

// Target is what the selected inputs must fund.
type Target struct {
	Amount       uint64
	NativeTokens ledger.NativeTokens
}

// AddressSet is a set of addresses controlled by the caller.
type AddressSet map[ledger.AddressKey]struct{}

// NewAddressSet returns a set holding addrs.
func NewAddressSet(addrs ...ledger.Address) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s.Add(a)
	}
	return s
}

func (s AddressSet) Add(a ledger.Address) { s[a.Key()] = struct{}{} }

func (s AddressSet) Contains(a ledger.Address) bool {
	_, ok := s[a.Key()]
	return ok
}

// Constraints narrow and shape a selection.
type Constraints struct {
	// Owned are the Ed25519 addresses the signer holds keys for.
	Owned AddressSet
	// Now is the unix time ownership, timelocks and expirations are evaluated at.
	Now                       uint64
	AllowTimelocked           bool
	AllowStorageDepositReturn bool
	// MandatoryInputs are always selected.
	MandatoryInputs []ledger.OutputID
	// CustomInputs, when set, are the exact input set.
	CustomInputs []ledger.OutputID
	// RemainderAddress receives change. When nil the first Ed25519 owner
	// among the selected inputs is used.
	RemainderAddress ledger.Address
	RemainderChain   keys.Chain
	Params           *ledger.ProtocolParameters
	// FoldRemainder lets a remainder below the storage deposit floor be
	// reported as FoldedAmount instead of failing.
	FoldRemainder bool
}

// Result is a selection ready to be handed to tx.Build.
type Result struct {
	// Inputs are sorted by output id.
	Inputs    []tx.InputSigningData
	Remainder *tx.RemainderData
	// StorageDepositReturns must be added to the transaction outputs.
	StorageDepositReturns ledger.Outputs
	// FoldedAmount must be added to the caller's primary output.
	FoldedAmount uint64
}

// Outputs returns the outputs the selection adds to the transaction.
func (r *Result) Outputs() ledger.Outputs {
	out := make(ledger.Outputs, 0, len(r.StorageDepositReturns)+1)
	out = append(out, r.StorageDepositReturns...)
	if r.Remainder != nil {
		out = append(out, r.Remainder.Output)
	}
	return out
}

type candidate struct {
	index  int
	input  tx.InputSigningData
	amount uint64 // spendable after any storage deposit return
	tokens ledger.TokenBalance
	sdr    *ledger.StorageDepositReturnUnlockCondition
	forced bool
}

type selector struct {
	target     Target
	targetToks ledger.TokenBalance
	c          Constraints
	viable     []*candidate
	selected   map[int]bool
}

// Select chooses inputs from candidates that fund target under constraints.
//
// Native tokens are covered before the base coin. Within each step the
// smallest number of inputs is used; among sets of equal size those touching
// fewer distinct native tokens win, then those with the lowest candidate
// indices. Only basic outputs are picked automatically; other kinds must be
// mandatory or custom inputs.
func Select(candidates []tx.InputSigningData, target Target, c Constraints) (*Result, error) {
	if c.Params == nil {
		return nil, fmt.Errorf("%w: protocol parameters are required", ErrInvalidConstraints)
	}
	if err := target.NativeTokens.Validate(0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConstraints, err)
	}
	targetToks, err := target.NativeTokens.Balance()
	if err != nil {
		return nil, err
	}
	s := &selector{target: target, targetToks: targetToks, c: c, selected: make(map[int]bool)}
	if err := s.filter(candidates); err != nil {
		return nil, err
	}
	if len(s.viable) == 0 {
		return nil, ErrNoViableInputs
	}
	for _, cand := range s.viable {
		if cand.forced {
			s.selected[cand.index] = true
		}
	}

	if len(c.CustomInputs) == 0 {
		if err := s.coverTokens(); err != nil {
			return nil, err
		}
		if err := s.coverAmount(); err != nil {
			return nil, err
		}
	} else if err := s.checkCovered(); err != nil {
		return nil, err
	}
	if len(s.selected) == 0 {
		return nil, ErrNoViableInputs
	}
	return s.finish()
}

// filter keeps the candidates the caller can unlock now.
func (s *selector) filter(candidates []tx.InputSigningData) error {
	forcedIDs := make(map[ledger.OutputID]bool)
	for _, id := range s.c.MandatoryInputs {
		forcedIDs[id] = true
	}
	for _, id := range s.c.CustomInputs {
		forcedIDs[id] = true
	}

	// Outputs owned by an account or NFT are unlockable only when the chain
	// itself is consumed, which never happens automatically.
	chains := NewAddressSet()
	found := make(map[ledger.OutputID]bool)
	for _, in := range candidates {
		if !forcedIDs[in.OutputID] {
			continue
		}
		found[in.OutputID] = true
		if addr, ok := ledger.ChainAddress(in.Output, in.OutputID); ok {
			chains.Add(addr)
		}
	}
	for id := range forcedIDs {
		if !found[id] {
			return fmt.Errorf("%w: %s", ErrInputNotFound, id)
		}
	}

	for i, in := range candidates {
		cand, reason := s.examine(i, in, chains)
		forced := forcedIDs[in.OutputID]
		if cand == nil {
			if forced {
				return fmt.Errorf("%w: input %s %s", ErrNoViableInputs, in.OutputID, reason)
			}
			continue
		}
		cand.forced = forced
		if !forced && (len(s.c.CustomInputs) > 0 || in.Output.Type() != ledger.OutputBasic) {
			continue
		}
		s.viable = append(s.viable, cand)
	}
	return nil
}

func (s *selector) examine(i int, in tx.InputSigningData, chains AddressSet) (*candidate, string) {
	if in.Output == nil {
		return nil, "has no output"
	}
	owner, err := ledger.OwnerAddress(in.Output, s.c.Now)
	if err != nil {
		return nil, err.Error()
	}
	if owner.Type() == ledger.AddressEd25519 {
		if !s.c.Owned.Contains(owner) {
			return nil, "is not owned"
		}
	} else if !chains.Contains(owner) {
		return nil, "is owned by an unconsumed chain"
	}
	if !s.c.AllowTimelocked && ledger.TimelockedAt(in.Output, s.c.Now) {
		return nil, "is timelocked"
	}
	cand := &candidate{index: i, input: in, amount: in.Output.Deposit()}
	if sdr, ok := ledger.StorageDepositReturnAt(in.Output, s.c.Now); ok {
		if !s.c.AllowStorageDepositReturn {
			return nil, "requires a storage deposit return"
		}
		if sdr.Amount > cand.amount {
			return nil, "returns more than it holds"
		}
		cand.amount -= sdr.Amount
		cand.sdr = &sdr
	}
	toks, err := in.Output.Tokens().Balance()
	if err != nil {
		return nil, err.Error()
	}
	cand.tokens = toks
	return cand, ""
}

// totals sums the spendable amount and tokens of the selected inputs.
func (s *selector) totals() (uint64, ledger.TokenBalance, error) {
	var amount uint64
	toks := ledger.TokenBalance{}
	for _, cand := range s.viable {
		if !s.selected[cand.index] {
			continue
		}
		sum, carry := bits.Add64(amount, cand.amount, 0)
		if carry != 0 {
			return 0, nil, ledger.ErrAmountOverflow
		}
		amount = sum
		if err := toks.Merge(cand.tokens); err != nil {
			return 0, nil, err
		}
	}
	return amount, toks, nil
}

// available sums what the selection could reach at most. Sums saturate.
func (s *selector) available() (uint64, ledger.TokenBalance) {
	var amount uint64
	toks := ledger.TokenBalance{}
	for _, cand := range s.viable {
		amount = saturatingAdd(amount, cand.amount)
		for id, v := range cand.tokens {
			toks[id] = saturatingAdd(toks[id], v)
		}
	}
	return amount, toks
}

// touched returns the native token ids held by the selected inputs.
func (s *selector) touched() map[ledger.TokenID]bool {
	out := make(map[ledger.TokenID]bool)
	for _, cand := range s.viable {
		if !s.selected[cand.index] {
			continue
		}
		for id := range cand.tokens {
			out[id] = true
		}
	}
	return out
}

func (s *selector) unselected() []*candidate {
	var out []*candidate
	for _, cand := range s.viable {
		if !s.selected[cand.index] {
			out = append(out, cand)
		}
	}
	return out
}

func (s *selector) coverTokens() error {
	for _, id := range s.targetToks.IDs() {
		_, have, err := s.totals()
		if err != nil {
			return err
		}
		want := s.targetToks[id]
		if have[id] >= want {
			continue
		}
		picked, ok := pickMinimal(s.unselected(), s.touched(), want-have[id], func(c *candidate) uint64 { return c.tokens[id] })
		if !ok {
			_, avail := s.available()
			return &InsufficientFundsError{Required: want, Available: avail[id], TokenID: &id}
		}
		for _, cand := range picked {
			s.selected[cand.index] = true
		}
	}
	return nil
}

func (s *selector) coverAmount() error {
	have, _, err := s.totals()
	if err != nil {
		return err
	}
	if have >= s.target.Amount {
		return nil
	}
	picked, ok := pickMinimal(s.unselected(), s.touched(), s.target.Amount-have, func(c *candidate) uint64 { return c.amount })
	if !ok {
		avail, _ := s.available()
		return &InsufficientFundsError{Required: s.target.Amount, Available: avail}
	}
	for _, cand := range picked {
		s.selected[cand.index] = true
	}
	return nil
}

// checkCovered verifies that a custom input set funds the target on its own.
func (s *selector) checkCovered() error {
	amount, toks, err := s.totals()
	if err != nil {
		return err
	}
	for _, id := range s.targetToks.IDs() {
		if toks[id] < s.targetToks[id] {
			return &InsufficientFundsError{Required: s.targetToks[id], Available: toks[id], TokenID: &id}
		}
	}
	if amount < s.target.Amount {
		return &InsufficientFundsError{Required: s.target.Amount, Available: amount}
	}
	return nil
}

// finish settles the remainder and assembles the result.
func (s *selector) finish() (*Result, error) {
	base := make(map[int]bool, len(s.selected))
	for i := range s.selected {
		base[i] = true
	}

	for {
		excess, excessToks, err := s.excess()
		if err != nil {
			return nil, err
		}
		if excess == 0 && len(excessToks) == 0 {
			return s.result(nil, 0)
		}
		remainder, err := s.remainder(excess, excessToks)
		if err != nil {
			return nil, err
		}
		floor, err := s.c.Params.MinStorageDeposit(remainder.Output)
		if err != nil {
			return nil, err
		}
		if excess >= floor {
			return s.result(remainder, 0)
		}

		var picked []*candidate
		ok := false
		if len(s.c.CustomInputs) == 0 {
			picked, ok = pickMinimal(s.unselected(), s.touched(), floor-excess, func(c *candidate) uint64 { return c.amount })
		}
		if ok {
			for _, cand := range picked {
				s.selected[cand.index] = true
			}
			continue
		}

		// No further inputs can lift the remainder over the floor.
		s.selected = base
		excess, excessToks, err = s.excess()
		if err != nil {
			return nil, err
		}
		if len(excessToks) == 0 && s.c.FoldRemainder {
			return s.result(nil, excess)
		}
		avail, _ := s.available()
		required, carry := bits.Add64(s.target.Amount, floor, 0)
		if carry != 0 {
			required = ^uint64(0)
		}
		return nil, &InsufficientFundsError{Required: required, Available: avail}
	}
}

// excess is what the selected inputs hold beyond the target.
func (s *selector) excess() (uint64, ledger.TokenBalance, error) {
	amount, toks, err := s.totals()
	if err != nil {
		return 0, nil, err
	}
	out := ledger.TokenBalance{}
	for _, id := range toks.IDs() {
		if toks[id] > s.targetToks[id] {
			out[id] = toks[id] - s.targetToks[id]
		}
	}
	return amount - s.target.Amount, out, nil
}

func (s *selector) remainder(amount uint64, toks ledger.TokenBalance) (*tx.RemainderData, error) {
	addr, chain := s.c.RemainderAddress, s.c.RemainderChain
	if addr == nil {
		for _, in := range s.inputs() {
			owner, err := ledger.OwnerAddress(in.Output, s.c.Now)
			if err == nil && owner.Type() == ledger.AddressEd25519 {
				addr, chain = owner, in.Chain
				break
			}
		}
	}
	if addr == nil {
		return nil, fmt.Errorf("%w: no remainder address", ErrInvalidConstraints)
	}
	return &tx.RemainderData{
		Output: ledger.BasicOutput{
			Amount:           amount,
			NativeTokens:     toks.NativeTokens(),
			UnlockConditions: ledger.UnlockConditions{ledger.AddressUnlockCondition{Address: addr}},
		},
		Chain:   chain,
		Address: addr,
	}, nil
}

// inputs returns the selected inputs in output id order.
func (s *selector) inputs() []tx.InputSigningData {
	out := make([]tx.InputSigningData, 0, len(s.selected))
	for _, cand := range s.viable {
		if s.selected[cand.index] {
			out = append(out, cand.input)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutputID.Compare(out[j].OutputID) < 0 })
	return out
}

func (s *selector) result(remainder *tx.RemainderData, folded uint64) (*Result, error) {
	inputs := s.inputs()
	if len(inputs) > s.c.Params.MaxInputs {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyInputs, len(inputs), s.c.Params.MaxInputs)
	}

	// Returns to the same address are merged into one output.
	byID := make(map[ledger.OutputID]*candidate, len(s.viable))
	for _, cand := range s.viable {
		byID[cand.input.OutputID] = cand
	}
	var returns ledger.Outputs
	at := make(map[ledger.AddressKey]int)
	for _, in := range inputs {
		sdr := byID[in.OutputID].sdr
		if sdr == nil {
			continue
		}
		key := sdr.ReturnAddress.Key()
		if i, ok := at[key]; ok {
			o := returns[i].(ledger.BasicOutput)
			sum, carry := bits.Add64(o.Amount, sdr.Amount, 0)
			if carry != 0 {
				return nil, ledger.ErrAmountOverflow
			}
			o.Amount = sum
			returns[i] = o
			continue
		}
		at[key] = len(returns)
		returns = append(returns, ledger.BasicOutput{
			Amount:           sdr.Amount,
			UnlockConditions: ledger.UnlockConditions{ledger.AddressUnlockCondition{Address: sdr.ReturnAddress}},
		})
	}
	return &Result{
		Inputs:                inputs,
		Remainder:             remainder,
		StorageDepositReturns: returns,
		FoldedAmount:          folded,
	}, nil
}

// pickMinimal returns the fewest candidates whose values reach deficit. The
// size is fixed by taking the largest values first; each slot is then filled
// with the feasible candidate adding the fewest native token ids not already
// touched, lowest index first, so the chosen set touches as few distinct
// tokens as the greedy order allows.
func pickMinimal(pool []*candidate, touched map[ledger.TokenID]bool, deficit uint64, value func(*candidate) uint64) ([]*candidate, bool) {
	var useful []*candidate
	for _, c := range pool {
		if value(c) > 0 {
			useful = append(useful, c)
		}
	}
	sort.SliceStable(useful, func(i, j int) bool { return useful[i].index < useful[j].index })
	byValue := make([]*candidate, len(useful))
	copy(byValue, useful)
	sort.SliceStable(byValue, func(i, j int) bool { return value(byValue[i]) > value(byValue[j]) })

	size := 0
	var sum uint64
	for _, c := range byValue {
		if sum >= deficit {
			break
		}
		sum = saturatingAdd(sum, value(c))
		size++
	}
	if sum < deficit {
		return nil, false
	}

	seen := make(map[ledger.TokenID]bool, len(touched))
	for id := range touched {
		seen[id] = true
	}
	chosen := make(map[int]bool, size)
	var out []*candidate
	for slots := size; slots > 0 && deficit > 0; slots-- {
		var best *candidate
		bestNew := 0
		for _, c := range useful {
			if chosen[c.index] {
				continue
			}
			rest := topSum(byValue, chosen, c.index, slots-1, value)
			if saturatingAdd(value(c), rest) < deficit {
				continue
			}
			n := newTokens(c, seen)
			if best == nil || n < bestNew {
				best, bestNew = c, n
			}
		}
		if best == nil {
			break
		}
		chosen[best.index] = true
		out = append(out, best)
		for id := range best.tokens {
			seen[id] = true
		}
		if value(best) >= deficit {
			deficit = 0
		} else {
			deficit -= value(best)
		}
	}
	return out, deficit == 0
}

func newTokens(c *candidate, seen map[ledger.TokenID]bool) int {
	n := 0
	for id := range c.tokens {
		if !seen[id] {
			n++
		}
	}
	return n
}

// topSum adds the n largest values not yet chosen and other than skip.
func topSum(byValue []*candidate, chosen map[int]bool, skip, n int, value func(*candidate) uint64) uint64 {
	var sum uint64
	for _, c := range byValue {
		if n == 0 {
			break
		}
		if chosen[c.index] || c.index == skip {
			continue
		}
		sum = saturatingAdd(sum, value(c))
		n--
	}
	return sum
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}
