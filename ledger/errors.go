package ledger

import "errors"

var (
	// ErrUnknownType indicates a type tag that does not belong to the variant set.
	ErrUnknownType = errors.New("ledger: unknown type tag")

	// ErrMalformed indicates bytes that cannot be decoded into the expected shape.
	ErrMalformed = errors.New("ledger: malformed encoding")

	// ErrInvalidAddress indicates an address that fails length, type or checksum checks.
	ErrInvalidAddress = errors.New("ledger: invalid address")

	// ErrInvalidPublicKey indicates bytes that are not a valid Ed25519 curve point.
	ErrInvalidPublicKey = errors.New("ledger: invalid public key")

	// ErrInvalidOutput indicates an output violating its unlock condition or feature rules.
	ErrInvalidOutput = errors.New("ledger: invalid output")

	// ErrInvalidID indicates an identifier with the wrong length or encoding.
	ErrInvalidID = errors.New("ledger: invalid identifier")

	// ErrAmountOverflow indicates an amount sum that does not fit in 64 bits.
	ErrAmountOverflow = errors.New("ledger: amount overflow")

	// ErrInvalidPayload indicates a payload violating structural limits.
	ErrInvalidPayload = errors.New("ledger: invalid payload")

	// ErrInvalidUnlock indicates an unlock list that does not match its essence.
	ErrInvalidUnlock = errors.New("ledger: invalid unlock")

	// ErrInvalidParameters indicates protocol parameters that cannot be built against.
	ErrInvalidParameters = errors.New("ledger: invalid protocol parameters")
)
