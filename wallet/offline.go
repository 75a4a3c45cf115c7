package wallet

import (
	"context"
	"fmt"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/secret"
	"github.com/bitfsorg/libledger-go/storage"
	"github.com/bitfsorg/libledger-go/tx"
)

// SignPrepared is the offline half of an air-gapped transfer: it signs the
// prepared transaction for h found in ex and writes the signed file next to it.
func SignPrepared(ctx context.Context, m secret.Manager, ex *storage.FileExchange, h ledger.Digest) (string, error) {
	if m == nil {
		return "", ErrNoSigner
	}
	if ex == nil {
		return "", ErrNoExchange
	}
	prepared, err := ex.ReadPrepared(h)
	if err != nil {
		return "", err
	}
	got, err := prepared.EssenceHash()
	if err != nil {
		return "", err
	}
	if got != h {
		return "", fmt.Errorf("%w: file for %s holds essence %s", storage.ErrCorrupt, h, got)
	}
	signed, err := tx.SignTransaction(ctx, m, prepared)
	if err != nil {
		return "", err
	}
	return ex.WriteSigned(signed)
}

// SignAllPrepared signs every prepared file in ex that has no signed
// counterpart yet and returns the essence hashes it signed. It stops at the
// first failure.
func SignAllPrepared(ctx context.Context, m secret.Manager, ex *storage.FileExchange) ([]ledger.Digest, error) {
	if ex == nil {
		return nil, ErrNoExchange
	}
	artifacts, err := ex.List()
	if err != nil {
		return nil, err
	}
	signed := make(map[ledger.Digest]bool)
	for _, art := range artifacts {
		if art.Signed {
			signed[art.EssenceHash] = true
		}
	}
	var done []ledger.Digest
	for _, art := range artifacts {
		if art.Signed || signed[art.EssenceHash] {
			continue
		}
		if _, err := SignPrepared(ctx, m, ex, art.EssenceHash); err != nil {
			return done, fmt.Errorf("wallet: sign %s: %w", art.EssenceHash, err)
		}
		done = append(done, art.EssenceHash)
	}
	return done, nil
}
