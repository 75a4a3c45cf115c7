package tx

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/secret"
)

// SignTransaction hashes the prepared essence, collects one signature per
// distinct Ed25519 owner and assembles the unlocked payload. Signatures are
// requested concurrently unless the manager only serves one request at a time.
func SignTransaction(ctx context.Context, m secret.Manager, p *PreparedTransactionData) (*SignedTransactionData, error) {
	if m == nil || p == nil {
		return nil, ErrNilParam
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	hash, err := HashEssence(p.Essence)
	if err != nil {
		return nil, err
	}
	signers, err := Signers(p.Inputs, p.Timestamp)
	if err != nil {
		return nil, err
	}

	sigs := make([]ledger.Ed25519Signature, len(signers))
	sign := func(ctx context.Context, i int) error {
		sig, err := m.SignEssenceHash(ctx, hash, signers[i].Chain)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrSigningFailed, signers[i].Chain, err)
		}
		sigs[i] = sig
		return nil
	}
	if secret.IsSerial(m) {
		for i := range signers {
			if err := sign(ctx, i); err != nil {
				return nil, err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i := range signers {
			g.Go(func() error { return sign(gctx, i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	byAddress := make(map[ledger.Ed25519Address]ledger.Ed25519Signature, len(sigs))
	for i, sig := range sigs {
		if sig.Address() != signers[i].Address {
			return nil, fmt.Errorf("%w: key at %s does not own %s", ErrInvalidSignature, signers[i].Chain, signers[i].Address)
		}
		byAddress[signers[i].Address] = sig
	}
	unlocks, err := AssembleUnlocks(p.Inputs, byAddress, p.Timestamp)
	if err != nil {
		return nil, err
	}
	payload := &ledger.TransactionPayload{Essence: p.Essence, Unlocks: unlocks}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &SignedTransactionData{Payload: payload, Inputs: p.Inputs}, nil
}
