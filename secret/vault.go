package secret

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/bitfsorg/libledger-go/keys"
	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/vault"
)

// VaultManager signs with the seed of an encrypted vault file once it has been unlocked.
type VaultManager struct {
	path   string
	logger zerolog.Logger

	mu   sync.RWMutex
	seed []byte
}

var (
	_ Manager   = (*VaultManager)(nil)
	_ EVMSigner = (*VaultManager)(nil)
)

// NewVaultManager returns a locked manager for the vault at path.
func NewVaultManager(path string, logger zerolog.Logger) *VaultManager {
	return &VaultManager{path: path, logger: logger.With().Str("component", "vault").Logger()}
}

// Path returns the vault file location.
func (m *VaultManager) Path() string { return m.path }

// Unlock decrypts the vault and keeps the seed in memory. Decryption runs
// without holding the manager lock so signers of an unlocked vault are not blocked.
func (m *VaultManager) Unlock(password string) error {
	seed, err := vault.Open(m.path, password)
	if err != nil {
		m.logger.Warn().Err(err).Str("path", m.path).Msg("vault unlock failed")
		return err
	}

	m.mu.Lock()
	old := m.seed
	m.seed = seed
	m.mu.Unlock()
	zero(old)

	m.logger.Info().Str("path", m.path).Msg("vault unlocked")
	return nil
}

// Lock zeroes the in-memory seed.
func (m *VaultManager) Lock() {
	m.mu.Lock()
	zero(m.seed)
	m.seed = nil
	m.mu.Unlock()
	m.logger.Info().Str("path", m.path).Msg("vault locked")
}

// Locked reports whether the seed is absent from memory.
func (m *VaultManager) Locked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seed == nil
}

// withSeed runs fn under the read lock so Lock cannot zero the seed mid-derivation.
func (m *VaultManager) withSeed(fn func(seed []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.seed == nil {
		return ErrLocked
	}
	return fn(m.seed)
}

func (m *VaultManager) Ed25519Address(_ context.Context, chain keys.Chain) (ledger.Ed25519Address, error) {
	var addr ledger.Ed25519Address
	err := m.withSeed(func(seed []byte) error {
		var err error
		addr, err = seedAddress(seed, chain)
		return err
	})
	return addr, err
}

func (m *VaultManager) SignEssenceHash(_ context.Context, hash ledger.Digest, chain keys.Chain) (ledger.Ed25519Signature, error) {
	var sig ledger.Ed25519Signature
	err := m.withSeed(func(seed []byte) error {
		var err error
		sig, err = seedSign(seed, hash, chain)
		return err
	})
	return sig, err
}

func (m *VaultManager) EVMAddress(_ context.Context, chain keys.Chain) ([20]byte, error) {
	var addr [20]byte
	err := m.withSeed(func(seed []byte) error {
		var err error
		addr, err = seedEVMAddress(seed, chain)
		return err
	})
	return addr, err
}

func (m *VaultManager) SignSecp256k1(_ context.Context, hash []byte, chain keys.Chain) ([]byte, error) {
	var sig []byte
	err := m.withSeed(func(seed []byte) error {
		var err error
		sig, err = seedSignSecp256k1(seed, hash, chain)
		return err
	})
	return sig, err
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
