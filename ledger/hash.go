package ledger

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// DigestLength is the size of a BLAKE2b-256 digest.
const DigestLength = blake2b.Size256

// Digest is a BLAKE2b-256 hash.
type Digest [DigestLength]byte

// Blake2b256 hashes the concatenation of the given byte slices.
func Blake2b256(parts ...[]byte) Digest {
	h, err := blake2b.New256(nil)
	if err != nil {
		panic(
			fmt.Sprintf(
				"unexpected error generating empty blake2b hash: %s",
				err,
			),
		)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// Hex returns the lowercase hex form of the digest.
func (d Digest) Hex() string { return hex.EncodeToString(d[:]) }

func (d Digest) String() string { return d.Hex() }

// Bytes returns a copy of the digest bytes.
func (d Digest) Bytes() []byte {
	b := make([]byte, DigestLength)
	copy(b, d[:])
	return b
}

// IsZero reports whether every byte of the digest is zero.
func (d Digest) IsZero() bool { return d == Digest{} }

// DigestFromHex parses a hex digest with or without 0x prefix.
func DigestFromHex(s string) (Digest, error) {
	var d Digest
	if err := decodeHexID(s, d[:], "digest"); err != nil {
		return Digest{}, err
	}
	return d, nil
}
