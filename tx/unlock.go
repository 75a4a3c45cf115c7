package tx

import (
	"fmt"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
)

// Signer is an Ed25519 owner that must sign the essence, with the chain of its key.
type Signer struct {
	Address ledger.Ed25519Address
	Chain   keys.Chain
}

// Signers lists the distinct Ed25519 owners of inputs in first-occurrence order.
func Signers(inputs []InputSigningData, unixTime uint64) ([]Signer, error) {
	owner, err := owners(inputs, unixTime)
	if err != nil {
		return nil, err
	}
	seen := make(map[ledger.Ed25519Address]struct{})
	var out []Signer
	for i, addr := range owner {
		ed, ok := addr.(ledger.Ed25519Address)
		if !ok {
			continue
		}
		if _, dup := seen[ed]; dup {
			continue
		}
		seen[ed] = struct{}{}
		if len(inputs[i].Chain) == 0 {
			return nil, fmt.Errorf("%w: input %s has no key chain", ErrMissingSignature, inputs[i].OutputID)
		}
		out = append(out, Signer{Address: ed, Chain: inputs[i].Chain})
	}
	return out, nil
}

// AssembleUnlocks produces one unlock per input, in input order. The first
// input of every Ed25519 owner carries its signature and later ones
// reference it; inputs owned by an account or NFT reference the input that
// produced that chain.
func AssembleUnlocks(inputs []InputSigningData, signatures map[ledger.Ed25519Address]ledger.Ed25519Signature, unixTime uint64) (ledger.Unlocks, error) {
	owner, err := owners(inputs, unixTime)
	if err != nil {
		return nil, err
	}
	unlocks := make(ledger.Unlocks, len(inputs))
	signedAt := make(map[ledger.Ed25519Address]uint16)
	producedAt := make(map[ledger.AddressKey]uint16)

	for i, in := range inputs {
		idx := uint16(i)
		switch addr := owner[i].(type) {
		case ledger.Ed25519Address:
			if ref, ok := signedAt[addr]; ok {
				unlocks[i] = ledger.ReferenceUnlock{Reference: ref}
				break
			}
			sig, ok := signatures[addr]
			if !ok {
				return nil, fmt.Errorf("%w: input %s owned by %s", ErrMissingSignature, in.OutputID, addr)
			}
			if sig.Address() != addr {
				return nil, fmt.Errorf("%w: signature for %s made by %s", ErrInvalidSignature, addr, sig.Address())
			}
			unlocks[i] = ledger.SignatureUnlock{Signature: sig}
			signedAt[addr] = idx
		case ledger.AccountAddress:
			ref, ok := producedAt[addr.Key()]
			if !ok {
				return nil, fmt.Errorf("%w: input %s owned by %s", ErrUnlockReference, in.OutputID, addr)
			}
			unlocks[i] = ledger.AccountUnlock{Reference: ref}
		case ledger.NFTAddress:
			ref, ok := producedAt[addr.Key()]
			if !ok {
				return nil, fmt.Errorf("%w: input %s owned by %s", ErrUnlockReference, in.OutputID, addr)
			}
			unlocks[i] = ledger.NFTUnlock{Reference: ref}
		default:
			return nil, fmt.Errorf("%w: owner %T", ledger.ErrUnknownType, addr)
		}
		if chain, ok := ledger.ChainAddress(in.Output, in.OutputID); ok {
			producedAt[chain.Key()] = idx
		}
	}
	return unlocks, nil
}

// VerifyUnlocks checks a signed transaction against the inputs it consumes:
// the unlock structure, that every signature verifies against the essence
// hash and that every unlock resolves to the owner of its input.
func VerifyUnlocks(payload *ledger.TransactionPayload, inputs []InputSigningData, unixTime uint64) error {
	if payload == nil || payload.Essence == nil {
		return ErrNilParam
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	if len(inputs) != len(payload.Essence.Inputs) {
		return fmt.Errorf("%w: %d inputs for %d essence inputs", ErrInvalidPrepared, len(inputs), len(payload.Essence.Inputs))
	}
	hash, err := HashEssence(payload.Essence)
	if err != nil {
		return err
	}
	owner, err := owners(inputs, unixTime)
	if err != nil {
		return err
	}
	// unlockedBy records, per input, the address its unlock proves control of.
	unlockedBy := make([]ledger.Address, len(inputs))
	for i, u := range payload.Unlocks {
		if inputs[i].OutputID != payload.Essence.Inputs[i] {
			return fmt.Errorf("%w: input %d is %s, essence has %s", ErrInvalidPrepared, i, inputs[i].OutputID, payload.Essence.Inputs[i])
		}
		switch v := u.(type) {
		case ledger.SignatureUnlock:
			if !v.Signature.Valid(hash[:]) {
				return fmt.Errorf("%w: unlock %d", ErrInvalidSignature, i)
			}
			unlockedBy[i] = v.Signature.Address()
		case ledger.ReferenceUnlock:
			unlockedBy[i] = unlockedBy[v.Reference]
		case ledger.AccountUnlock:
			addr, ok := ledger.ChainAddress(inputs[v.Reference].Output, inputs[v.Reference].OutputID)
			if !ok || addr.Type() != ledger.AddressAccount {
				return fmt.Errorf("%w: unlock %d references %d", ErrUnlockReference, i, v.Reference)
			}
			unlockedBy[i] = addr
		case ledger.NFTUnlock:
			addr, ok := ledger.ChainAddress(inputs[v.Reference].Output, inputs[v.Reference].OutputID)
			if !ok || addr.Type() != ledger.AddressNFT {
				return fmt.Errorf("%w: unlock %d references %d", ErrUnlockReference, i, v.Reference)
			}
			unlockedBy[i] = addr
		default:
			return fmt.Errorf("%w: unlock %T", ledger.ErrUnknownType, v)
		}
		if !ledger.EqualAddress(unlockedBy[i], owner[i]) {
			return fmt.Errorf("%w: unlock %d does not unlock %s", ErrInvalidSignature, i, owner[i])
		}
	}
	return nil
}
