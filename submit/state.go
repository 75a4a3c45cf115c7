package submit

import (
	"sync"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

// State is the stage of a transaction pipeline.
type State uint8

const (
	StatePreparing State = iota
	StatePrepared
	StateSigning
	StateSigned
	StateSubmitting
	StatePending
	StateIncluded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePreparing:
		return "preparing"
	case StatePrepared:
		return "prepared"
	case StateSigning:
		return "signing"
	case StateSigned:
		return "signed"
	case StateSubmitting:
		return "submitting"
	case StatePending:
		return "pending"
	case StateIncluded:
		return "included"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// transitions lists the legal successors of every state. Failed is left
// towards Submitting or Pending only when the signed payload or its block
// survived, see Pipeline.transition.
var transitions = map[State][]State{
	StatePreparing:  {StatePrepared, StateFailed},
	StatePrepared:   {StateSigning},
	StateSigning:    {StateSigned, StatePrepared, StateFailed},
	StateSigned:     {StateSubmitting},
	StateSubmitting: {StatePending, StateSigned, StateFailed},
	StatePending:    {StateIncluded, StateSubmitting, StateFailed},
	StateFailed:     {StateSubmitting, StatePending},
}

// Pipeline is one transaction on its way from preparation to inclusion.
// It is safe for concurrent use.
type Pipeline struct {
	mu       sync.RWMutex
	hash     ledger.Digest
	state    State
	err      error
	prepared *tx.PreparedTransactionData
	signed   *tx.SignedTransactionData
	blockID  *ledger.BlockID
}

func newPipeline() *Pipeline {
	return &Pipeline{state: StatePreparing}
}

// EssenceHash identifies the pipeline. It is zero until preparation succeeds.
func (p *Pipeline) EssenceHash() ledger.Digest {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hash
}

func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Err returns the error that moved the pipeline to Failed, if any.
func (p *Pipeline) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

func (p *Pipeline) Prepared() *tx.PreparedTransactionData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.prepared
}

func (p *Pipeline) Signed() *tx.SignedTransactionData {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.signed
}

// BlockID returns the block the payload was last posted in.
func (p *Pipeline) BlockID() (ledger.BlockID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.blockID == nil {
		return ledger.BlockID{}, false
	}
	return *p.blockID, true
}

// TransactionID returns the id of the signed transaction.
func (p *Pipeline) TransactionID() (ledger.TransactionID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.signed == nil {
		return ledger.TransactionID{}, false
	}
	id, err := p.signed.TransactionID()
	return id, err == nil
}

// transition moves the pipeline to the next state. Leaving Failed needs the
// artifact the next stage works on.
func (p *Pipeline) transition(to State) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transitionLocked(to)
}

func (p *Pipeline) transitionLocked(to State) error {
	if !allowed(p.state, to) {
		return &TransitionError{From: p.state, To: to}
	}
	if p.state == StateFailed {
		if (to == StateSubmitting && p.signed == nil) || (to == StatePending && p.blockID == nil) {
			return &TransitionError{From: p.state, To: to}
		}
	}
	p.state = to
	if to != StateFailed {
		p.err = nil
	}
	return nil
}

// fail moves the pipeline to Failed and records cause.
func (p *Pipeline) fail(cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.transitionLocked(StateFailed); err != nil {
		return err
	}
	p.err = cause
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
