package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bitfsorg/libledger-go/ledger"
	"github.com/bitfsorg/libledger-go/tx"
)

// Artifact file extensions written by FileExchange.
const (
	ExtPrepared = ".prepared"
	ExtSigned   = ".signed"
)

// FileExchange moves prepared and signed transactions between an online
// machine and an offline signer as files in a shared directory.
// Files are stored at: {baseDir}/{hex(essenceHash)}{ext} as hex text.
type FileExchange struct {
	baseDir string
	mu      sync.RWMutex
}

// Artifact names a transaction file found in the exchange directory.
type Artifact struct {
	EssenceHash ledger.Digest
	Signed      bool
	Path        string
}

// NewFileExchange creates the exchange rooted at baseDir, creating it if needed.
func NewFileExchange(baseDir string) (*FileExchange, error) {
	if baseDir == "" {
		return nil, ErrInvalidBaseDir
	}
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return &FileExchange{baseDir: baseDir}, nil
}

func (fx *FileExchange) path(h ledger.Digest, ext string) string {
	return filepath.Join(fx.baseDir, h.Hex()+ext)
}

// WritePrepared writes p for an offline signer and returns the file path.
func (fx *FileExchange) WritePrepared(p *tx.PreparedTransactionData) (string, error) {
	if p == nil {
		return "", tx.ErrNilParam
	}
	h, err := p.EssenceHash()
	if err != nil {
		return "", err
	}
	text, err := p.Hex()
	if err != nil {
		return "", err
	}
	path := fx.path(h, ExtPrepared)
	return path, fx.writeAtomic(path, text)
}

// WriteSigned writes s next to the prepared file it was signed from.
func (fx *FileExchange) WriteSigned(s *tx.SignedTransactionData) (string, error) {
	if s == nil {
		return "", tx.ErrNilParam
	}
	h, err := s.EssenceHash()
	if err != nil {
		return "", err
	}
	text, err := s.Hex()
	if err != nil {
		return "", err
	}
	path := fx.path(h, ExtSigned)
	return path, fx.writeAtomic(path, text)
}

// ReadPrepared reads and validates the prepared transaction for h.
func (fx *FileExchange) ReadPrepared(h ledger.Digest) (*tx.PreparedTransactionData, error) {
	text, err := fx.read(fx.path(h, ExtPrepared))
	if err != nil {
		return nil, err
	}
	return tx.PreparedFromHex(text)
}

// ReadSigned reads the signed transaction for h.
func (fx *FileExchange) ReadSigned(h ledger.Digest) (*tx.SignedTransactionData, error) {
	text, err := fx.read(fx.path(h, ExtSigned))
	if err != nil {
		return nil, err
	}
	return tx.SignedFromHex(text)
}

// Remove deletes both artifacts for h. Missing files are ignored.
func (fx *FileExchange) Remove(h ledger.Digest) error {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	for _, ext := range []string{ExtPrepared, ExtSigned} {
		if err := os.Remove(fx.path(h, ext)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
	}
	return nil
}

// List returns the artifacts in the exchange directory, ordered by essence
// hash with the prepared file first.
func (fx *FileExchange) List() ([]Artifact, error) {
	fx.mu.RLock()
	defer fx.mu.RUnlock()

	entries, err := os.ReadDir(fx.baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	var out []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ExtPrepared && ext != ExtSigned {
			continue
		}
		h, err := ledger.DigestFromHex(strings.TrimSuffix(name, ext))
		if err != nil {
			continue // skip foreign files
		}
		out = append(out, Artifact{EssenceHash: h, Signed: ext == ExtSigned, Path: filepath.Join(fx.baseDir, name)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EssenceHash != out[j].EssenceHash {
			return out[i].EssenceHash.Hex() < out[j].EssenceHash.Hex()
		}
		return !out[i].Signed && out[j].Signed
	})
	return out, nil
}

// writeAtomic writes text to a temporary file in the same directory and
// renames it over path, so a reader never sees a partial artifact.
func (fx *FileExchange) writeAtomic(path, text string) error {
	fx.mu.Lock()
	defer fx.mu.Unlock()

	f, err := os.CreateTemp(fx.baseDir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	tmp := f.Name()
	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	return nil
}

func (fx *FileExchange) read(path string) (string, error) {
	fx.mu.RLock()
	defer fx.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}
