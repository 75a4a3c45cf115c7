package ledger

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// RawMessage is a raw encoded CBOR value.
type RawMessage = cbor.RawMessage

var (
	cachedEncMode     cbor.EncMode
	cachedEncModeErr  error
	cachedEncModeOnce sync.Once

	cachedDecMode     cbor.DecMode
	cachedDecModeErr  error
	cachedDecModeOnce sync.Once
)

func getEncMode() (cbor.EncMode, error) {
	cachedEncModeOnce.Do(func() {
		opts := cbor.EncOptions{
			// Make sure that maps have ordered keys
			Sort: cbor.SortCoreDeterministic,
		}
		cachedEncMode, cachedEncModeErr = opts.EncMode()
	})
	return cachedEncMode, cachedEncModeErr
}

func getDecMode() (cbor.DecMode, error) {
	cachedDecModeOnce.Do(func() {
		opts := cbor.DecOptions{
			MaxNestedLevels: 64,
		}
		cachedDecMode, cachedDecModeErr = opts.DecMode()
	})
	return cachedDecMode, cachedDecModeErr
}

// Encode serializes v with the canonical encoding options.
func Encode(v any) ([]byte, error) {
	em, err := getEncMode()
	if err != nil {
		return nil, err
	}
	return em.Marshal(v)
}

// Decode deserializes data into dest.
func Decode(data []byte, dest any) error {
	dm, err := getDecMode()
	if err != nil {
		return err
	}
	if err := dm.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

// encodeList encodes the items as a definite-length CBOR array.
func encodeList(items ...any) ([]byte, error) {
	return Encode(items)
}

// decodeList splits a CBOR array into its raw elements and checks the element count.
func decodeList(data []byte, want int, what string) ([]RawMessage, error) {
	var items []RawMessage
	if err := Decode(data, &items); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if want >= 0 && len(items) != want {
		return nil, fmt.Errorf("%w: %s: expected %d elements, got %d", ErrMalformed, what, want, len(items))
	}
	return items, nil
}

// decodeTypeFromList returns the leading type tag of a tagged-variant array.
func decodeTypeFromList(data []byte) (uint8, error) {
	var items []RawMessage
	if err := Decode(data, &items); err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("%w: empty variant", ErrMalformed)
	}
	var tag uint8
	if err := Decode(items[0], &tag); err != nil {
		return 0, err
	}
	return tag, nil
}

// decodeFixed decodes a byte string of exactly len(dest) bytes into dest.
func decodeFixed(raw RawMessage, dest []byte, what string) error {
	var b []byte
	if err := Decode(raw, &b); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if len(b) != len(dest) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrMalformed, what, len(dest), len(b))
	}
	copy(dest, b)
	return nil
}

// decodeRawList decodes a CBOR array into raw elements; an empty array yields nil.
func decodeRawList(raw RawMessage, what string) ([]RawMessage, error) {
	items, err := decodeList(raw, -1, what)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}

// nonNil keeps nil slices from being encoded as CBOR null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// emptyToNil normalizes zero-length byte strings to nil after decoding.
func emptyToNil(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
