package selection

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jinzhu/copier"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

type poolEntry struct {
	input    tx.InputSigningData
	reserved bool
}

// Pool tracks the unspent outputs of an account and which of them are held
// by a preparation in flight. Readers work on snapshots, so a concurrent
// preparation never observes a partially updated pool.
type Pool struct {
	mu      sync.RWMutex
	entries map[ledger.OutputID]*poolEntry
}

// NewPool returns a pool holding inputs.
func NewPool(inputs ...tx.InputSigningData) *Pool {
	p := &Pool{entries: make(map[ledger.OutputID]*poolEntry)}
	p.Add(inputs...)
	return p
}

// Add inserts or refreshes outputs. A refreshed output keeps its reservation.
func (p *Pool) Add(inputs ...tx.InputSigningData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, in := range inputs {
		if e, ok := p.entries[in.OutputID]; ok {
			e.input = in
			continue
		}
		p.entries[in.OutputID] = &poolEntry{input: in}
	}
}

// Remove drops outputs from the pool regardless of their reservation.
func (p *Pool) Remove(ids ...ledger.OutputID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		delete(p.entries, id)
	}
}

// Snapshot returns deep copies of the unreserved outputs in output id order.
func (p *Pool) Snapshot() ([]tx.InputSigningData, error) {
	return p.collect(false)
}

// Inputs returns deep copies of every tracked output, reserved ones
// included, in output id order.
func (p *Pool) Inputs() ([]tx.InputSigningData, error) {
	return p.collect(true)
}

func (p *Pool) collect(withReserved bool) ([]tx.InputSigningData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]tx.InputSigningData, 0, len(p.entries))
	for _, e := range p.entries {
		if e.reserved && !withReserved {
			continue
		}
		in, err := cloneInput(e.input)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OutputID.Compare(out[j].OutputID) < 0 })
	return out, nil
}

// Reserve marks ids as held. Either all ids are reserved or none is.
func (p *Pool) Reserve(ids ...ledger.OutputID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		e, ok := p.entries[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownOutput, id)
		}
		if e.reserved {
			return fmt.Errorf("%w: %s", ErrAlreadyReserved, id)
		}
	}
	for _, id := range ids {
		p.entries[id].reserved = true
	}
	return nil
}

// Release returns reserved outputs to the pool, enabling rollback when a
// preparation fails before it is signed.
func (p *Pool) Release(ids ...ledger.OutputID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		if e, ok := p.entries[id]; ok {
			e.reserved = false
		}
	}
}

// MarkSpent removes outputs consumed by an included transaction.
func (p *Pool) MarkSpent(ids ...ledger.OutputID) {
	p.Remove(ids...)
}

// Len returns the number of tracked outputs, reserved ones included.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Reserved returns the ids currently held, in output id order.
func (p *Pool) Reserved() []ledger.OutputID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var ids []ledger.OutputID
	for id, e := range p.entries {
		if e.reserved {
			ids = append(ids, id)
		}
	}
	ledger.SortOutputIDs(ids)
	return ids
}

// Balance sums the base coin and native tokens of the unreserved outputs.
func (p *Pool) Balance() (uint64, ledger.TokenBalance, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var amount uint64
	toks := ledger.TokenBalance{}
	for _, e := range p.entries {
		if e.reserved {
			continue
		}
		amount = saturatingAdd(amount, e.input.Output.Deposit())
		for _, t := range e.input.Output.Tokens() {
			if err := toks.Add(t.ID, t.Amount); err != nil {
				return 0, nil, err
			}
		}
	}
	return amount, toks, nil
}

func cloneInput(in tx.InputSigningData) (tx.InputSigningData, error) {
	out := tx.InputSigningData{OutputID: in.OutputID, Metadata: in.Metadata}
	o, err := ledger.CloneOutput(in.Output)
	if err != nil {
		return tx.InputSigningData{}, fmt.Errorf("selection: clone %s: %w", in.OutputID, err)
	}
	out.Output = o
	if in.Chain != nil {
		var chain keys.Chain
		if err := copier.CopyWithOption(&chain, &in.Chain, copier.Option{DeepCopy: true}); err != nil {
			return tx.InputSigningData{}, fmt.Errorf("selection: clone %s: %w", in.OutputID, err)
		}
		out.Chain = chain
	}
	return out, nil
}
