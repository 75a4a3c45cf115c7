package keys

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath indicates a derivation chain that cannot be used for the requested curve.
	ErrInvalidPath = errors.New("keys: invalid derivation path")

	// ErrInvalidSeed indicates a seed outside the 16..64 byte range.
	ErrInvalidSeed = errors.New("keys: invalid seed")

	// ErrUnsupportedCurve indicates a curve the engine does not derive keys for.
	ErrUnsupportedCurve = errors.New("keys: unsupported curve")

	// ErrDerivationFailed indicates the underlying derivation produced no usable key.
	ErrDerivationFailed = errors.New("keys: key derivation failed")

	// ErrWrongCurve indicates an operation that does not match the key pair's curve.
	ErrWrongCurve = errors.New("keys: operation not supported for curve")
)

// PathError reports which segment of a chain was rejected.
type PathError struct {
	Chain   string
	Segment int
	Reason  string
}

func (e *PathError) Error() string {
	if e.Segment < 0 {
		return fmt.Sprintf("keys: invalid derivation path %q: %s", e.Chain, e.Reason)
	}
	return fmt.Sprintf("keys: invalid derivation path %q at segment %d: %s", e.Chain, e.Segment, e.Reason)
}

func (e *PathError) Unwrap() error { return ErrInvalidPath }
