package submit

import (
	"errors"
	"fmt"

	"github.com/bitfsorg/libledger-go/ledger"
)

var (
	// ErrNilParam indicates a required parameter is nil.
	ErrNilParam = errors.New("submit: required parameter is nil")

	// ErrInvalidTransition indicates a step was requested in a state that does not allow it.
	ErrInvalidTransition = errors.New("submit: invalid state transition")

	// ErrSubmissionFailed indicates the signed payload could not be handed to a node.
	ErrSubmissionFailed = errors.New("submit: submission failed")

	// ErrInclusionTimeout indicates the transaction was not included within the wait budget.
	ErrInclusionTimeout = errors.New("submit: inclusion timeout")

	// ErrConflictRejected indicates the ledger rejected the transaction as conflicting.
	ErrConflictRejected = errors.New("submit: transaction conflicting")

	// ErrUnknownPipeline indicates no pipeline exists for an essence hash.
	ErrUnknownPipeline = errors.New("submit: unknown pipeline")

	// ErrNoSigner indicates signing was requested from a driver without a secret manager.
	ErrNoSigner = errors.New("submit: no secret manager")

	// ErrFoldTarget indicates a folded remainder has no basic output to land in.
	ErrFoldTarget = errors.New("submit: no basic output to fold remainder into")

	// ErrUnknownCommand indicates a command type the driver does not handle.
	ErrUnknownCommand = errors.New("submit: unknown command")

	// ErrEssenceMismatch indicates signed data belongs to a different essence.
	ErrEssenceMismatch = errors.New("submit: signed data does not match prepared essence")
)

// TransitionError reports a step requested in the wrong state.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("submit: invalid state transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// SubmissionError reports that submission gave up. The signed payload is
// kept, so the same transaction can be submitted again.
type SubmissionError struct {
	EssenceHash ledger.Digest
	Attempts    int
	Err         error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit: submission of %s failed after %d attempts: %v", e.EssenceHash, e.Attempts, e.Err)
}

func (e *SubmissionError) Unwrap() []error { return []error{ErrSubmissionFailed, e.Err} }

// ConflictError reports the ledger conflict a transaction was rejected with.
type ConflictError struct {
	BlockID ledger.BlockID
	Reason  uint8
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("submit: block %s conflicting (reason %d)", e.BlockID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflictRejected }
