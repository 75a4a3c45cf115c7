package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/network"
	"github.com/bitfsorg/libledger-go/secret"
	"github.com/bitfsorg/libledger-go/selection"
	"github.com/bitfsorg/libledger-go/storage"
	"github.com/bitfsorg/libledger-go/submit"
	"github.com/bitfsorg/libledger-go/tx"
)

// syncParallelism bounds concurrent node queries during Sync.
const syncParallelism = 8

// Account is one BIP44 account: its addresses, its unspent outputs and the
// driver that spends them.
type Account struct {
	w      *Wallet
	store  *storage.AccountStore
	pool   *selection.Pool
	driver *submit.Driver
	logger zerolog.Logger

	mu    sync.Mutex
	state *storage.AccountState
}

// newPool seeds the candidate pool from the saved outputs and holds the
// inputs of transactions still pending from an earlier run.
func newPool(state *storage.AccountState, store *storage.AccountStore) (*selection.Pool, error) {
	pool := selection.NewPool(state.Outputs...)
	pending, err := store.ListPending()
	if err != nil {
		return nil, err
	}
	for _, h := range pending {
		rec, err := store.LoadPending(h)
		if err != nil {
			return nil, fmt.Errorf("wallet: pending %s: %w", h, err)
		}
		if rec.Prepared == nil {
			continue
		}
		for _, in := range rec.Prepared.Inputs {
			_ = pool.Reserve(in.OutputID)
		}
	}
	return pool, nil
}

// Alias returns the account name.
func (a *Account) Alias() string { return a.state.Alias }

// Index returns the BIP44 account index.
func (a *Account) Index() uint32 { return a.state.Index }

// Driver returns the submission driver bound to the account.
func (a *Account) Driver() *submit.Driver { return a.driver }

// Addresses returns the generated addresses in generation order.
func (a *Account) Addresses() []storage.AddressRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]storage.AddressRecord(nil), a.state.Addresses...)
}

// Bech32 renders addr with the wallet network's prefix.
func (a *Account) Bech32(addr ledger.Address) string {
	return addr.Bech32(a.w.network.Bech32HRP)
}

// Owned returns the set of addresses the account holds keys for.
func (a *Account) Owned() selection.AddressSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	set := selection.NewAddressSet()
	for _, rec := range a.state.Addresses {
		set.Add(rec.Address)
	}
	return set
}

// GenerateAddresses derives count new public (or, with internal, change)
// addresses and records them.
func (a *Account) GenerateAddresses(ctx context.Context, count uint32, internal bool) ([]storage.AddressRecord, error) {
	if a.w.signer == nil {
		return nil, ErrNoSigner
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	start := a.state.NextReceiveIndex
	if internal {
		start = a.state.NextChangeIndex
	}
	generated, err := secret.GenerateAddresses(ctx, a.w.signer, secret.AddressRange{
		CoinType: a.state.CoinType,
		Account:  a.state.Index,
		Internal: internal,
		Start:    start,
		Count:    count,
	})
	if err != nil {
		return nil, err
	}

	records := make([]storage.AddressRecord, len(generated))
	for i, g := range generated {
		records[i] = storage.AddressRecord{Address: g.Address, Chain: g.Chain, Internal: internal}
	}
	next := *a.state
	next.Addresses = append(append([]storage.AddressRecord(nil), a.state.Addresses...), records...)
	if internal {
		next.NextChangeIndex = start + count
	} else {
		next.NextReceiveIndex = start + count
	}
	if err := a.store.SaveAccountState(&next); err != nil {
		return nil, err
	}
	a.state = &next
	a.logger.Debug().Uint32("start", start).Uint32("count", count).Bool("internal", internal).Msg("addresses generated")
	return records, nil
}

// ImportAddresses records addresses derived elsewhere, typically by an
// offline signer, so a wallet without keys can watch and spend from them.
// Known addresses are skipped and the next indices move past imported ones.
func (a *Account) ImportAddresses(records ...storage.AddressRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := *a.state
	next.Addresses = append([]storage.AddressRecord(nil), a.state.Addresses...)
	known := make(map[ledger.Ed25519Address]bool, len(next.Addresses))
	for _, rec := range next.Addresses {
		known[rec.Address] = true
	}
	for _, rec := range records {
		if len(rec.Chain) == 0 {
			return fmt.Errorf("%w: address %s has no chain", keys.ErrInvalidPath, rec.Address)
		}
		if err := rec.Chain.Validate(); err != nil {
			return err
		}
		if known[rec.Address] {
			continue
		}
		known[rec.Address] = true
		next.Addresses = append(next.Addresses, rec)
		idx := rec.Chain[len(rec.Chain)-1].Index + 1
		if rec.Internal && idx > next.NextChangeIndex {
			next.NextChangeIndex = idx
		} else if !rec.Internal && idx > next.NextReceiveIndex {
			next.NextReceiveIndex = idx
		}
	}
	if err := a.store.SaveAccountState(&next); err != nil {
		return err
	}
	a.state = &next
	return nil
}

// SyncResult summarises an output sync.
type SyncResult struct {
	Outputs int
	Removed int
}

// Sync asks the node for the unspent outputs of every generated address and
// replaces the unreserved part of the pool with the answer. Outputs held by
// a transaction in flight are left to the driver.
func (a *Account) Sync(ctx context.Context) (SyncResult, error) {
	params, err := a.w.client.ProtocolParameters(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("wallet: protocol parameters: %w", err)
	}
	if err := a.w.network.Matches(params); err != nil {
		return SyncResult{}, err
	}

	var (
		mu    sync.Mutex
		found []tx.InputSigningData
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncParallelism)
	for _, rec := range a.Addresses() {
		g.Go(func() error {
			ids, err := a.w.client.GetOutputIDs(gctx, network.OutputQuery{Address: rec.Address.Bech32(params.Bech32HRP)})
			if err != nil {
				return fmt.Errorf("wallet: outputs of %s: %w", rec.Chain, err)
			}
			for _, id := range ids {
				resp, err := a.w.client.GetOutput(gctx, id)
				if err != nil {
					return fmt.Errorf("wallet: output %s: %w", id, err)
				}
				if resp.Metadata.Spent {
					continue
				}
				mu.Lock()
				found = append(found, tx.InputSigningData{OutputID: id, Output: resp.Output, Metadata: resp.Metadata, Chain: rec.Chain})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SyncResult{}, err
	}

	seen := make(map[ledger.OutputID]bool, len(found))
	for _, in := range found {
		seen[in.OutputID] = true
	}
	unreserved, err := a.pool.Snapshot()
	if err != nil {
		return SyncResult{}, err
	}
	var stale []ledger.OutputID
	for _, in := range unreserved {
		if !seen[in.OutputID] {
			stale = append(stale, in.OutputID)
		}
	}
	a.pool.Remove(stale...)
	a.pool.Add(found...)

	if err := a.saveOutputs(); err != nil {
		return SyncResult{}, err
	}
	res := SyncResult{Outputs: a.pool.Len(), Removed: len(stale)}
	a.logger.Info().Int("outputs", res.Outputs).Int("removed", res.Removed).Msg("outputs synced")
	return res, nil
}

// saveOutputs persists the pool, reserved outputs included.
func (a *Account) saveOutputs() error {
	inputs, err := a.pool.Inputs()
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	next := *a.state
	next.Outputs = inputs
	if err := a.store.SaveAccountState(&next); err != nil {
		return err
	}
	a.state = &next
	return nil
}

// Balance sums the outputs not held by a transaction in flight.
func (a *Account) Balance() (uint64, ledger.TokenBalance, error) {
	return a.pool.Balance()
}

// SendOptions tunes input selection for Send and Prepare.
type SendOptions struct {
	TaggedData                *ledger.TaggedDataPayload
	MandatoryInputs           []ledger.OutputID
	CustomInputs              []ledger.OutputID
	AllowTimelocked           bool
	AllowStorageDepositReturn bool
	// FoldRemainder adds change below the storage deposit floor to the
	// first basic output instead of failing.
	FoldRemainder bool
}

func (a *Account) request(outputs ledger.Outputs, opts SendOptions) submit.Request {
	c := selection.Constraints{
		Owned:                     a.Owned(),
		AllowTimelocked:           opts.AllowTimelocked,
		AllowStorageDepositReturn: opts.AllowStorageDepositReturn,
		MandatoryInputs:           opts.MandatoryInputs,
		CustomInputs:              opts.CustomInputs,
		FoldRemainder:             opts.FoldRemainder,
	}
	for _, rec := range a.Addresses() {
		if rec.Internal {
			c.RemainderAddress = rec.Address
			c.RemainderChain = rec.Chain
			break
		}
	}
	return submit.Request{Outputs: outputs, Constraints: c, TaggedData: opts.TaggedData}
}

// Send prepares, signs and submits a transaction creating outputs and waits
// for its inclusion.
func (a *Account) Send(ctx context.Context, outputs ledger.Outputs, opts SendOptions) (*submit.Pipeline, error) {
	p, err := a.driver.Execute(ctx, submit.RunCommand{Request: a.request(outputs, opts)})
	a.settle(p)
	return p, err
}

// Prepare selects inputs and persists the prepared transaction without
// signing it.
func (a *Account) Prepare(ctx context.Context, outputs ledger.Outputs, opts SendOptions) (*submit.Pipeline, error) {
	return a.driver.Execute(ctx, submit.PrepareCommand{Request: a.request(outputs, opts)})
}

// Resume continues the pending transaction with the given essence hash.
func (a *Account) Resume(ctx context.Context, h ledger.Digest) (*submit.Pipeline, error) {
	p, err := a.driver.Execute(ctx, submit.ResumeCommand{EssenceHash: h})
	a.settle(p)
	return p, err
}

// ResumePending resumes every pending transaction of the account. Failures
// are joined; the remaining transactions are still attempted.
func (a *Account) ResumePending(ctx context.Context) ([]*submit.Pipeline, error) {
	hashes, err := a.store.ListPending()
	if err != nil {
		return nil, err
	}
	var (
		out  []*submit.Pipeline
		errs []error
	)
	for _, h := range hashes {
		p, err := a.Resume(ctx, h)
		if p != nil {
			out = append(out, p)
		}
		if err != nil {
			if ctx.Err() != nil {
				return out, errors.Join(append(errs, err)...)
			}
			errs = append(errs, fmt.Errorf("%s: %w", h, err))
		}
	}
	return out, errors.Join(errs...)
}

// Pending lists the essence hashes of transactions not yet included.
func (a *Account) Pending() ([]ledger.Digest, error) {
	return a.store.ListPending()
}

// settle saves the pool once a pipeline reached a final state.
func (a *Account) settle(p *submit.Pipeline) {
	if p == nil {
		return
	}
	if st := p.State(); st != submit.StateIncluded && st != submit.StateFailed {
		return
	}
	if err := a.saveOutputs(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to save outputs")
	}
}

// ExportPrepared writes the prepared transaction with essence hash h to the
// exchange directory for an offline signer and returns the file path.
func (a *Account) ExportPrepared(h ledger.Digest) (string, error) {
	rec, err := a.store.LoadPending(h)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", submit.ErrUnknownPipeline, h)
		}
		return "", err
	}
	if rec.Prepared == nil {
		return "", fmt.Errorf("%w: %s has no prepared data", submit.ErrUnknownPipeline, h)
	}
	path, err := a.w.exchange.WritePrepared(rec.Prepared)
	if err != nil {
		return "", err
	}
	a.logger.Info().Str("essence", h.Hex()).Str("path", path).Msg("prepared transaction exported")
	return path, nil
}

// ImportSigned reads the signed transaction for h from the exchange
// directory, checks it against the prepared data and removes both files.
func (a *Account) ImportSigned(h ledger.Digest) (*submit.Pipeline, error) {
	signed, err := a.w.exchange.ReadSigned(h)
	if err != nil {
		return nil, err
	}
	p, err := a.driver.Execute(context.Background(), submit.ImportSignedCommand{Signed: signed})
	if err != nil {
		return p, err
	}
	if err := a.w.exchange.Remove(h); err != nil {
		a.logger.Warn().Err(err).Str("essence", h.Hex()).Msg("failed to remove exchange files")
	}
	return p, nil
}
