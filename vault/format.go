// Package vault stores a root seed in a password-encrypted file.
//
// File layout: magic "LLVT" || version || version-specific header || ciphertext.
// The full header is authenticated as associated data.
//
//	v2 (legacy):  nonce(24) || XChaCha20-Poly1305(BLAKE2b-256(password), seed||checksum)
//	v3 (current): iterations(uint32 BE) || salt(16) || nonce(12) ||
//	              AES-256-GCM(Argon2id(password, salt, iterations), seed||checksum)
//
// The checksum is SHA256(seed)[:4] for verifying correct decryption.
package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	Version2       uint8 = 2
	Version3       uint8 = 3
	CurrentVersion       = Version3

	// Argon2id parameters for v3. Only the iteration count is stored in the file.
	DefaultKDFIterations = 3
	Argon2Memory         = 64 * 1024 // 64 MB
	Argon2Parallelism    = 4
	Argon2KeyLen         = 32

	SaltLen     = 16
	NonceLen    = 12
	ChecksumLen = 4
)

var magic = [4]byte{'L', 'L', 'V', 'T'}

const (
	prefixLen   = len(magic) + 1
	v2HeaderLen = prefixLen + chacha20poly1305.NonceSizeX
	v3HeaderLen = prefixLen + 4 + SaltLen + NonceLen
)

// Header describes a vault file without decrypting it.
type Header struct {
	Version       uint8
	KDFIterations uint32
}

// parseVersion checks the magic and returns the format version.
func parseVersion(data []byte) (uint8, error) {
	if len(data) < prefixLen || !bytes.Equal(data[:len(magic)], magic[:]) {
		return 0, ErrInvalidFormat
	}
	return data[len(magic)], nil
}

func parseHeader(data []byte) (Header, error) {
	version, err := parseVersion(data)
	if err != nil {
		return Header{}, err
	}
	h := Header{Version: version}
	switch version {
	case Version2:
		if len(data) < v2HeaderLen {
			return Header{}, ErrInvalidFormat
		}
	case Version3:
		if len(data) < v3HeaderLen {
			return Header{}, ErrInvalidFormat
		}
		h.KDFIterations = binary.BigEndian.Uint32(data[prefixLen:])
		if h.KDFIterations == 0 {
			return Header{}, fmt.Errorf("%w: zero KDF iterations", ErrInvalidFormat)
		}
	}
	return h, nil
}

// sealPlaintext returns seed || SHA256(seed)[:4].
func sealPlaintext(seed []byte) []byte {
	sum := sha256.Sum256(seed)
	plaintext := make([]byte, len(seed)+ChecksumLen)
	copy(plaintext, seed)
	copy(plaintext[len(seed):], sum[:ChecksumLen])
	return plaintext
}

// openPlaintext splits and verifies the checksum, returning a copy of the seed.
func openPlaintext(plaintext []byte) ([]byte, error) {
	if len(plaintext) <= ChecksumLen {
		return nil, ErrDecryptionFailed
	}
	seed := plaintext[:len(plaintext)-ChecksumLen]
	sum := sha256.Sum256(seed)
	if subtle.ConstantTimeCompare(sum[:ChecksumLen], plaintext[len(seed):]) != 1 {
		return nil, ErrChecksumMismatch
	}
	out := make([]byte, len(seed))
	copy(out, seed)
	return out, nil
}

func deriveKeyV3(password string, salt []byte, iterations uint32) []byte {
	return argon2.IDKey([]byte(password), salt, iterations, Argon2Memory, Argon2Parallelism, Argon2KeyLen)
}

func encodeV3(seed []byte, password string, iterations uint32) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	if iterations == 0 {
		iterations = DefaultKDFIterations
	}

	header := make([]byte, v3HeaderLen)
	copy(header, magic[:])
	header[len(magic)] = Version3
	binary.BigEndian.PutUint32(header[prefixLen:], iterations)
	salt := header[prefixLen+4 : prefixLen+4+SaltLen]
	nonce := header[prefixLen+4+SaltLen:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vault: failed to generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	key := deriveKeyV3(password, salt, iterations)
	defer wipe(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: AES cipher creation failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: GCM creation failed: %w", err)
	}

	plaintext := sealPlaintext(seed)
	defer wipe(plaintext)
	ciphertext := gcm.Seal(nil, nonce, plaintext, header)
	return append(header, ciphertext...), nil
}

func decodeV3(data []byte, password string) ([]byte, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	header := data[:v3HeaderLen]
	salt := header[prefixLen+4 : prefixLen+4+SaltLen]
	nonce := header[prefixLen+4+SaltLen:]

	key := deriveKeyV3(password, salt, h.KDFIterations)
	defer wipe(key)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := gcm.Open(nil, nonce, data[v3HeaderLen:], header)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer wipe(plaintext)
	return openPlaintext(plaintext)
}

func deriveKeyV2(password string) []byte {
	sum := blake2b.Sum256([]byte(password))
	return sum[:]
}

// encodeV2 writes the legacy format. Only migration tests produce new v2 files.
func encodeV2(seed []byte, password string) ([]byte, error) {
	if len(seed) == 0 {
		return nil, ErrInvalidSeed
	}
	header := make([]byte, v2HeaderLen)
	copy(header, magic[:])
	header[len(magic)] = Version2
	nonce := header[prefixLen:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("vault: failed to generate nonce: %w", err)
	}

	key := deriveKeyV2(password)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("vault: cipher creation failed: %w", err)
	}
	plaintext := sealPlaintext(seed)
	defer wipe(plaintext)
	ciphertext := aead.Seal(nil, nonce, plaintext, header)
	return append(header, ciphertext...), nil
}

func decodeV2(data []byte, password string) ([]byte, error) {
	if _, err := parseHeader(data); err != nil {
		return nil, err
	}
	header := data[:v2HeaderLen]
	key := deriveKeyV2(password)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	plaintext, err := aead.Open(nil, header[prefixLen:], data[v2HeaderLen:], header)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer wipe(plaintext)
	return openPlaintext(plaintext)
}

// decodeAny decrypts any readable version.
func decodeAny(data []byte, password string) ([]byte, uint8, error) {
	version, err := parseVersion(data)
	if err != nil {
		return nil, 0, err
	}
	switch version {
	case Version2:
		seed, err := decodeV2(data, password)
		return seed, version, err
	case Version3:
		seed, err := decodeV3(data, password)
		return seed, version, err
	default:
		return nil, version, ErrUnsupportedVersion
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
