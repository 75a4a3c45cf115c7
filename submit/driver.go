// Package submit drives transactions from preparation through signing and
// submission to ledger inclusion.
package submit

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/network"
	"github.com/bitfsorg/libledger-go/secret"
	"github.com/bitfsorg/libledger-go/selection"
	"github.com/bitfsorg/libledger-go/storage"
	"github.com/bitfsorg/libledger-go/tx"
)

// reserveRetries bounds how often Prepare re-selects after losing a race
// for an input to a concurrent preparation.
const reserveRetries = 3

// PendingStore persists pipelines between preparation and inclusion.
type PendingStore interface {
	SavePending(p *storage.PendingTransaction) error
	LoadPending(h ledger.Digest) (*storage.PendingTransaction, error)
	DeletePending(h ledger.Digest) error
}

var _ PendingStore = (*storage.AccountStore)(nil)

// Options tune submission retries and inclusion polling.
type Options struct {
	// SubmitAttempts is the number of times a payload is posted before
	// submission gives up.
	SubmitAttempts   int
	SubmitBackoff    time.Duration
	SubmitMaxBackoff time.Duration
	PollInterval     time.Duration
	InclusionTimeout time.Duration
	// Now is the clock ownership and timelocks are resolved with.
	Now func() time.Time
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		SubmitAttempts:   5,
		SubmitBackoff:    time.Second,
		SubmitMaxBackoff: 30 * time.Second,
		PollInterval:     5 * time.Second,
		InclusionTimeout: 5 * time.Minute,
		Now:              time.Now,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SubmitAttempts <= 0 {
		o.SubmitAttempts = def.SubmitAttempts
	}
	if o.SubmitBackoff <= 0 {
		o.SubmitBackoff = def.SubmitBackoff
	}
	if o.SubmitMaxBackoff < o.SubmitBackoff {
		o.SubmitMaxBackoff = max(def.SubmitMaxBackoff, o.SubmitBackoff)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.InclusionTimeout <= 0 {
		o.InclusionTimeout = def.InclusionTimeout
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	return o
}

// Request describes a transaction to prepare.
type Request struct {
	// Outputs are the caller's outputs. A folded remainder is added to the
	// first basic output.
	Outputs ledger.Outputs
	// Constraints shape input selection. Params and Now are filled from the
	// node and the driver clock when unset.
	Constraints selection.Constraints
	TaggedData  *ledger.TaggedDataPayload
}

// Driver runs transaction pipelines against one account.
type Driver struct {
	client  network.Client
	signer  secret.Manager
	pool    *selection.Pool
	store   PendingStore
	opts    Options
	backoff backoff
	logger  zerolog.Logger

	mu        sync.Mutex
	pipelines map[ledger.Digest]*Pipeline
}

// NewDriver wires a driver. signer may be nil for an online machine that
// only prepares, imports offline signatures and submits.
func NewDriver(client network.Client, signer secret.Manager, pool *selection.Pool, store PendingStore, opts Options, logger zerolog.Logger) (*Driver, error) {
	if client == nil || pool == nil || store == nil {
		return nil, ErrNilParam
	}
	opts = opts.withDefaults()
	return &Driver{
		client:    client,
		signer:    signer,
		pool:      pool,
		store:     store,
		opts:      opts,
		backoff:   backoff{base: opts.SubmitBackoff, max: opts.SubmitMaxBackoff},
		logger:    logger,
		pipelines: make(map[ledger.Digest]*Pipeline),
	}, nil
}

// Lookup returns the in-memory pipeline for h.
func (d *Driver) Lookup(h ledger.Digest) (*Pipeline, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pipelines[h]
	return p, ok
}

// Prepare selects inputs, builds the essence and persists the prepared
// data. The selected inputs stay reserved until the pipeline is included or
// fails before signing. A failed preparation returns the pipeline in Failed
// with the cause preserved.
func (d *Driver) Prepare(ctx context.Context, req Request) (*Pipeline, error) {
	p := newPipeline()
	prepared, err := d.prepare(ctx, req)
	if err != nil {
		_ = p.fail(err)
		return p, err
	}
	ids := inputIDs(prepared.Inputs)
	hash, err := prepared.EssenceHash()
	if err == nil {
		err = d.store.SavePending(&storage.PendingTransaction{EssenceHash: hash, Prepared: prepared})
	}
	if err != nil {
		d.pool.Release(ids...)
		_ = p.fail(err)
		return p, err
	}

	p.mu.Lock()
	p.hash = hash
	p.prepared = prepared
	p.mu.Unlock()
	if err := p.transition(StatePrepared); err != nil {
		return p, err
	}
	d.register(p)
	d.logger.Info().
		Str("essence", hash.Hex()).
		Int("inputs", len(prepared.Inputs)).
		Int("outputs", len(prepared.Essence.Outputs)).
		Msg("transaction prepared")
	return p, nil
}

func (d *Driver) prepare(ctx context.Context, req Request) (*tx.PreparedTransactionData, error) {
	if len(req.Outputs) == 0 {
		return nil, tx.ErrNoOutputs
	}
	c := req.Constraints
	if c.Params == nil {
		params, err := d.client.ProtocolParameters(ctx)
		if err != nil {
			return nil, fmt.Errorf("submit: protocol parameters: %w", err)
		}
		c.Params = params
	}
	if c.Now == 0 {
		c.Now = uint64(d.opts.Now().Unix())
	}
	target, err := targetOf(req.Outputs)
	if err != nil {
		return nil, err
	}

	var res *selection.Result
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates, err := d.pool.Snapshot()
		if err != nil {
			return nil, err
		}
		res, err = selection.Select(candidates, target, c)
		if err != nil {
			return nil, err
		}
		err = d.pool.Reserve(inputIDs(res.Inputs)...)
		if err == nil {
			break
		}
		lost := errors.Is(err, selection.ErrAlreadyReserved) || errors.Is(err, selection.ErrUnknownOutput)
		if !lost || attempt == reserveRetries {
			return nil, err
		}
		d.logger.Debug().Int("attempt", attempt+1).Err(err).Msg("input taken by concurrent preparation, selecting again")
	}

	outputs, err := withSelection(req.Outputs, res)
	if err == nil {
		var prepared *tx.PreparedTransactionData
		prepared, err = tx.Prepare(c.Params, res.Inputs, outputs, req.TaggedData, res.Remainder, c.Now)
		if err == nil {
			return prepared, nil
		}
	}
	d.pool.Release(inputIDs(res.Inputs)...)
	return nil, err
}

// Sign collects the signatures of the prepared transaction. Cancellation
// leaves the pipeline Prepared. Any other signing failure releases the
// reserved inputs.
func (d *Driver) Sign(ctx context.Context, p *Pipeline) error {
	if p == nil {
		return ErrNilParam
	}
	if d.signer == nil {
		return ErrNoSigner
	}
	if err := p.transition(StateSigning); err != nil {
		return err
	}
	signed, err := tx.SignTransaction(ctx, d.signer, p.Prepared())
	if err != nil {
		if ctx.Err() != nil {
			_ = p.transition(StatePrepared)
			return err
		}
		d.abandon(p, err)
		return err
	}
	return d.acceptSigned(p, signed)
}

// ImportSigned attaches signatures produced elsewhere, typically by an
// offline signer, to the pending pipeline with the same essence.
func (d *Driver) ImportSigned(signed *tx.SignedTransactionData) (*Pipeline, error) {
	if signed == nil || signed.Payload == nil {
		return nil, ErrNilParam
	}
	h, err := signed.EssenceHash()
	if err != nil {
		return nil, err
	}
	p, err := d.load(h)
	if err != nil {
		return nil, err
	}
	prepared := p.Prepared()
	if prepared == nil {
		return p, fmt.Errorf("%w: %s has no prepared data", ErrEssenceMismatch, h)
	}
	if err := tx.VerifyUnlocks(signed.Payload, prepared.Inputs, prepared.Timestamp); err != nil {
		return p, fmt.Errorf("%w: %w", ErrEssenceMismatch, err)
	}
	if err := p.transition(StateSigning); err != nil {
		return p, err
	}
	return p, d.acceptSigned(p, &tx.SignedTransactionData{Payload: signed.Payload, Inputs: prepared.Inputs})
}

func (d *Driver) acceptSigned(p *Pipeline, signed *tx.SignedTransactionData) error {
	p.mu.Lock()
	p.signed = signed
	rec := &storage.PendingTransaction{EssenceHash: p.hash, Prepared: p.prepared, Signed: signed}
	p.mu.Unlock()
	if err := p.transition(StateSigned); err != nil {
		return err
	}
	txID, _ := p.TransactionID()
	d.logger.Info().Str("essence", rec.EssenceHash.Hex()).Str("tx", txID.Hex()).Msg("transaction signed")
	if err := d.store.SavePending(rec); err != nil {
		return fmt.Errorf("submit: persist signed transaction: %w", err)
	}
	return nil
}

// Submit posts the signed payload, retrying transient failures with a
// doubling backoff. Giving up moves the pipeline to Failed with a
// *SubmissionError. The signed payload is kept, so Submit may be called
// again.
func (d *Driver) Submit(ctx context.Context, p *Pipeline) error {
	if p == nil {
		return ErrNilParam
	}
	if err := p.transition(StateSubmitting); err != nil {
		return err
	}
	id, err := d.post(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			_ = p.transition(StateSigned)
			return err
		}
		_ = p.fail(err)
		return err
	}
	d.posted(p, id)
	return p.transition(StatePending)
}

// post hands the signed payload to the node until it is accepted, a
// non-transient error occurs or the attempts are used up.
func (d *Driver) post(ctx context.Context, p *Pipeline) (ledger.BlockID, error) {
	signed := p.Signed()
	hash := p.EssenceHash()
	var wait time.Duration
	var attempts int
	var lastErr error
	for attempts < d.opts.SubmitAttempts {
		attempts++
		id, err := d.client.SubmitBlock(ctx, signed.Payload)
		if err == nil {
			return id, nil
		}
		if ctx.Err() != nil {
			return ledger.BlockID{}, ctx.Err()
		}
		lastErr = err
		if !network.IsRetryable(err) || attempts == d.opts.SubmitAttempts {
			break
		}
		wait = d.backoff.next(wait)
		d.logger.Warn().
			Str("essence", hash.Hex()).
			Int("attempt", attempts).
			Dur("wait", wait).
			Err(err).
			Msg("submission failed, retrying")
		if err := sleep(ctx, wait); err != nil {
			return ledger.BlockID{}, err
		}
	}
	d.logger.Error().Str("essence", hash.Hex()).Int("attempts", attempts).Err(lastErr).Msg("submission gave up")
	return ledger.BlockID{}, &SubmissionError{EssenceHash: hash, Attempts: attempts, Err: lastErr}
}

func (d *Driver) posted(p *Pipeline, id ledger.BlockID) {
	p.mu.Lock()
	p.blockID = &id
	rec := &storage.PendingTransaction{EssenceHash: p.hash, Prepared: p.prepared, Signed: p.signed, BlockID: &id}
	p.mu.Unlock()
	if err := d.store.SavePending(rec); err != nil {
		d.logger.Warn().Str("essence", rec.EssenceHash.Hex()).Err(err).Msg("failed to persist block id")
	}
	d.logger.Info().Str("essence", rec.EssenceHash.Hex()).Str("block", id.Hex()).Msg("transaction submitted")
}

// AwaitInclusion polls the node until the transaction is included, found
// conflicting or the inclusion timeout passes. A block the node no longer
// knows is posted again with the identical payload. Cancelling ctx stops
// waiting and leaves the pipeline Pending.
func (d *Driver) AwaitInclusion(ctx context.Context, p *Pipeline) error {
	if p == nil {
		return ErrNilParam
	}
	switch st := p.State(); st {
	case StatePending:
	case StateFailed:
		if err := p.transition(StatePending); err != nil {
			return err
		}
	default:
		return &TransitionError{From: st, To: StateIncluded}
	}

	timeout := time.NewTimer(d.opts.InclusionTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	for {
		blockID, _ := p.BlockID()
		meta, err := d.client.GetBlockMetadata(ctx, blockID)
		switch {
		case err == nil && meta.InclusionState == ledger.InclusionIncluded:
			return d.included(p, blockID)
		case err == nil && meta.InclusionState == ledger.InclusionConflicting:
			return d.conflicting(p, meta)
		case errors.Is(err, network.ErrNotFound):
			d.logger.Warn().Str("block", blockID.Hex()).Msg("block unknown to node, posting payload again")
			if err := d.repost(ctx, p); err != nil {
				return err
			}
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Debug().Str("block", blockID.Hex()).Err(err).Msg("inclusion poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout.C:
			err := fmt.Errorf("%w: block %s after %s", ErrInclusionTimeout, blockID, d.opts.InclusionTimeout)
			_ = p.fail(err)
			return err
		case <-ticker.C:
		}
	}
}

func (d *Driver) repost(ctx context.Context, p *Pipeline) error {
	if err := p.transition(StateSubmitting); err != nil {
		return err
	}
	id, err := d.post(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			_ = p.transition(StatePending)
			return err
		}
		_ = p.fail(err)
		return err
	}
	d.posted(p, id)
	return p.transition(StatePending)
}

// included settles the pool: consumed inputs are dropped and the remainder
// becomes spendable.
func (d *Driver) included(p *Pipeline, blockID ledger.BlockID) error {
	prepared := p.Prepared()
	txID, ok := p.TransactionID()
	if !ok {
		return fmt.Errorf("%w: included pipeline without signed payload", ErrNilParam)
	}
	d.pool.MarkSpent(inputIDs(prepared.Inputs)...)
	if rem := prepared.Remainder; rem != nil {
		if idx, found := outputIndex(prepared.Essence.Outputs, rem.Output); found {
			d.pool.Add(tx.InputSigningData{
				OutputID: ledger.NewOutputID(txID, idx),
				Output:   rem.Output,
				Metadata: ledger.OutputMetadata{BlockID: blockID, TransactionID: txID, OutputIndex: idx},
				Chain:    rem.Chain,
			})
		}
	}
	if err := p.transition(StateIncluded); err != nil {
		return err
	}
	d.finish(p)
	d.logger.Info().Str("tx", txID.Hex()).Str("block", blockID.Hex()).Msg("transaction included")
	return nil
}

// conflicting drops the consumed inputs from the pool; a later output sync
// brings back those still unspent.
func (d *Driver) conflicting(p *Pipeline, meta *network.BlockMetadata) error {
	d.pool.MarkSpent(inputIDs(p.Prepared().Inputs)...)
	cause := &ConflictError{BlockID: meta.BlockID, Reason: meta.ConflictReason}
	if err := p.fail(cause); err != nil {
		return err
	}
	d.finish(p)
	d.logger.Error().Str("block", meta.BlockID.Hex()).Uint8("reason", meta.ConflictReason).Msg("transaction conflicting")
	return cause
}

// abandon fails a pipeline that never got signed and frees its inputs.
func (d *Driver) abandon(p *Pipeline, cause error) {
	d.pool.Release(inputIDs(p.Prepared().Inputs)...)
	_ = p.fail(cause)
	d.finish(p)
	d.logger.Warn().Str("essence", p.EssenceHash().Hex()).Err(cause).Msg("transaction abandoned before signing")
}

// finish forgets a pipeline that reached a final state.
func (d *Driver) finish(p *Pipeline) {
	h := p.EssenceHash()
	if err := d.store.DeletePending(h); err != nil {
		d.logger.Warn().Str("essence", h.Hex()).Err(err).Msg("failed to delete pending transaction")
	}
	d.mu.Lock()
	delete(d.pipelines, h)
	d.mu.Unlock()
}

func (d *Driver) register(p *Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipelines[p.EssenceHash()] = p
}

// load returns the pipeline for h, restoring it from the pending store
// when this driver has not seen it yet.
func (d *Driver) load(h ledger.Digest) (*Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pipelines[h]; ok {
		return p, nil
	}
	rec, err := d.store.LoadPending(h)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPipeline, h)
		}
		return nil, err
	}
	if rec.Prepared == nil {
		return nil, fmt.Errorf("%w: %s has no prepared data", ErrUnknownPipeline, h)
	}
	p := &Pipeline{hash: h, prepared: rec.Prepared, signed: rec.Signed, blockID: rec.BlockID}
	switch {
	case rec.BlockID != nil && rec.Signed != nil:
		p.state = StatePending
	case rec.Signed != nil:
		p.state = StateSigned
	default:
		p.state = StatePrepared
	}
	// Hold inputs the pool still tracks; missing ones were synced away.
	for _, id := range inputIDs(rec.Prepared.Inputs) {
		_ = d.pool.Reserve(id)
	}
	d.pipelines[h] = p
	return p, nil
}

// Run takes a request through every stage up to inclusion.
func (d *Driver) Run(ctx context.Context, req Request) (*Pipeline, error) {
	p, err := d.Prepare(ctx, req)
	if err != nil {
		return p, err
	}
	return p, d.advance(ctx, p)
}

// Resume continues a persisted pipeline from the stage it reached. A
// failed pipeline is retried from its last artifact: the block is awaited
// again or the signed payload is posted again.
func (d *Driver) Resume(ctx context.Context, h ledger.Digest) (*Pipeline, error) {
	p, err := d.load(h)
	if err != nil {
		return nil, err
	}
	if p.State() == StateFailed {
		if _, ok := p.BlockID(); ok {
			err = d.AwaitInclusion(ctx, p)
		} else {
			err = d.Submit(ctx, p)
		}
		if err != nil {
			return p, err
		}
	}
	return p, d.advance(ctx, p)
}

func (d *Driver) advance(ctx context.Context, p *Pipeline) error {
	for {
		var err error
		switch st := p.State(); st {
		case StatePrepared:
			err = d.Sign(ctx, p)
		case StateSigned:
			err = d.Submit(ctx, p)
		case StatePending:
			err = d.AwaitInclusion(ctx, p)
		case StateIncluded:
			return nil
		case StateFailed:
			return p.Err()
		default:
			return &TransitionError{From: st, To: StateIncluded}
		}
		if err != nil {
			return err
		}
	}
}

func inputIDs(inputs []tx.InputSigningData) []ledger.OutputID {
	ids := make([]ledger.OutputID, len(inputs))
	for i, in := range inputs {
		ids[i] = in.OutputID
	}
	return ids
}

// targetOf sums what the outputs require from the inputs.
func targetOf(outputs ledger.Outputs) (selection.Target, error) {
	var amount uint64
	toks := ledger.TokenBalance{}
	for i, o := range outputs {
		if o == nil {
			return selection.Target{}, fmt.Errorf("%w: output %d", ErrNilParam, i)
		}
		sum, carry := bits.Add64(amount, o.Deposit(), 0)
		if carry != 0 {
			return selection.Target{}, ledger.ErrAmountOverflow
		}
		amount = sum
		for _, t := range o.Tokens() {
			if err := toks.Add(t.ID, t.Amount); err != nil {
				return selection.Target{}, err
			}
		}
	}
	return selection.Target{Amount: amount, NativeTokens: toks.NativeTokens()}, nil
}

// withSelection returns the caller outputs followed by the outputs the
// selection adds, with any folded remainder credited to the first basic
// output.
func withSelection(outputs ledger.Outputs, res *selection.Result) (ledger.Outputs, error) {
	out := make(ledger.Outputs, 0, len(outputs)+len(res.StorageDepositReturns)+1)
	out = append(out, outputs...)
	if res.FoldedAmount > 0 {
		folded := false
		for i, o := range out {
			b, ok := o.(ledger.BasicOutput)
			if !ok {
				continue
			}
			sum, carry := bits.Add64(b.Amount, res.FoldedAmount, 0)
			if carry != 0 {
				return nil, ledger.ErrAmountOverflow
			}
			b.Amount = sum
			out[i] = b
			folded = true
			break
		}
		if !folded {
			return nil, ErrFoldTarget
		}
	}
	return append(out, res.Outputs()...), nil
}

// outputIndex finds o among outputs, searching from the end where the
// remainder is placed.
func outputIndex(outputs ledger.Outputs, o ledger.Output) (uint16, bool) {
	want, err := ledger.EncodeOutput(o)
	if err != nil {
		return 0, false
	}
	for i := len(outputs) - 1; i >= 0; i-- {
		got, err := ledger.EncodeOutput(outputs[i])
		if err == nil && string(got) == string(want) {
			return uint16(i), true
		}
	}
	return 0, false
}
