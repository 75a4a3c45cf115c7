package tx

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libledger-go/ledger"
)

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("tx: required parameter is nil")

	// ErrNoInputs indicates an essence was requested without inputs.
	ErrNoInputs = errors.New("tx: no inputs")

	// ErrNoOutputs indicates an essence was requested without outputs.
	ErrNoOutputs = errors.New("tx: no outputs")

	// ErrTooManyInputs indicates the input count exceeds the protocol limit.
	ErrTooManyInputs = errors.New("tx: too many inputs")

	// ErrTooManyOutputs indicates the output count exceeds the protocol limit.
	ErrTooManyOutputs = errors.New("tx: too many outputs")

	// ErrDuplicateInput indicates the same output is consumed twice.
	ErrDuplicateInput = errors.New("tx: duplicate input")

	// ErrUnbalancedTransaction indicates inputs and outputs do not conserve
	// the base coin or a native token.
	ErrUnbalancedTransaction = errors.New("tx: unbalanced transaction")

	// ErrMissingSignature indicates an Ed25519 owner has no signature.
	ErrMissingSignature = errors.New("tx: missing signature")

	// ErrUnlockReference indicates an input is owned by a chain that no
	// earlier input produces.
	ErrUnlockReference = errors.New("tx: unresolvable unlock reference")

	// ErrInvalidSignature indicates a signature does not verify against the essence hash.
	ErrInvalidSignature = errors.New("tx: invalid signature")

	// ErrSigningFailed indicates the secret manager failed to sign.
	ErrSigningFailed = errors.New("tx: signing failed")

	// ErrInvalidPrepared indicates prepared transaction data is inconsistent.
	ErrInvalidPrepared = errors.New("tx: invalid prepared transaction data")
)

// UnbalancedError reports which asset is not conserved.
// A nil TokenID means the base coin.
type UnbalancedError struct {
	TokenID *ledger.TokenID
	In      uint64
	Out     uint64
}

func (e *UnbalancedError) Error() string {
	asset := "base coin"
	if e.TokenID != nil {
		asset = "token " + e.TokenID.String()
	}
	return fmt.Sprintf("%v: %s inputs %d, outputs %d", ErrUnbalancedTransaction, asset, e.In, e.Out)
}

func (e *UnbalancedError) Unwrap() error { return ErrUnbalancedTransaction }
