package secret

import (
	"context"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/compat/bip39"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
)

const (
	// Mnemonic entropy sizes.
	Mnemonic12Words = 128 // 12-word mnemonic
	Mnemonic24Words = 256 // 24-word mnemonic
)

// GenerateMnemonic creates a new BIP39 mnemonic with the specified entropy bits.
// Use Mnemonic12Words (128) for 12 words or Mnemonic24Words (256) for 24 words.
func GenerateMnemonic(entropyBits int) (string, error) {
	if entropyBits != Mnemonic12Words && entropyBits != Mnemonic24Words {
		return "", ErrInvalidEntropy
	}

	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("secret: failed to generate entropy: %w", err)
	}

	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("secret: failed to generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic checks the word list and checksum of a BIP39 mnemonic.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// SeedFromMnemonic derives the 64-byte BIP39 seed from mnemonic and an optional passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMnemonic, err)
	}
	return seed, nil
}

// MnemonicManager keeps the seed of a mnemonic in memory. Intended for tests
// and development; production keys belong in a vault or on a device.
type MnemonicManager struct {
	seed []byte
}

var (
	_ Manager   = (*MnemonicManager)(nil)
	_ EVMSigner = (*MnemonicManager)(nil)
)

// NewMnemonicManager validates mnemonic and derives its seed with an empty passphrase.
func NewMnemonicManager(mnemonic string) (*MnemonicManager, error) {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	return &MnemonicManager{seed: seed}, nil
}

func (m *MnemonicManager) Ed25519Address(_ context.Context, chain keys.Chain) (ledger.Ed25519Address, error) {
	return seedAddress(m.seed, chain)
}

func (m *MnemonicManager) SignEssenceHash(_ context.Context, hash ledger.Digest, chain keys.Chain) (ledger.Ed25519Signature, error) {
	return seedSign(m.seed, hash, chain)
}

func (m *MnemonicManager) EVMAddress(_ context.Context, chain keys.Chain) ([20]byte, error) {
	return seedEVMAddress(m.seed, chain)
}

func (m *MnemonicManager) SignSecp256k1(_ context.Context, hash []byte, chain keys.Chain) ([]byte, error) {
	return seedSignSecp256k1(m.seed, hash, chain)
}
