package selection

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libledger-go/ledger"
)

var (
	// ErrInsufficientFunds indicates the viable inputs cannot cover the target.
	ErrInsufficientFunds = errors.New("selection: insufficient funds")

	// ErrNoViableInputs indicates every candidate was filtered out.
	ErrNoViableInputs = errors.New("selection: no viable inputs")

	// ErrTooManyInputs indicates the selection exceeds the protocol input limit.
	ErrTooManyInputs = errors.New("selection: too many inputs")

	// ErrInputNotFound indicates a mandatory or custom input is not a candidate.
	ErrInputNotFound = errors.New("selection: input not found")

	// ErrInvalidConstraints indicates the target or constraints are unusable.
	ErrInvalidConstraints = errors.New("selection: invalid constraints")

	// ErrAlreadyReserved indicates an output is held by another preparation.
	ErrAlreadyReserved = errors.New("selection: output already reserved")

	// ErrUnknownOutput indicates an output id is not in the pool.
	ErrUnknownOutput = errors.New("selection: unknown output")
)

// InsufficientFundsError reports the shortfall of one asset. A nil TokenID
// means the base coin.
type InsufficientFundsError struct {
	Required  uint64
	Available uint64
	TokenID   *ledger.TokenID
}

func (e *InsufficientFundsError) Error() string {
	if e.TokenID != nil {
		return fmt.Sprintf("%v: token %s required %d, available %d", ErrInsufficientFunds, e.TokenID, e.Required, e.Available)
	}
	return fmt.Sprintf("%v: required %d, available %d", ErrInsufficientFunds, e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }
