package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const lockSuffix = ".lock"

// mu serializes writers inside one process; the sidecar lock covers other processes.
var mu sync.Mutex

// Options configures a newly written vault.
type Options struct {
	// KDFIterations is the Argon2id time cost; zero selects DefaultKDFIterations.
	KDFIterations uint32
}

// MigrationParams describes a migration of a vault file into a new file.
type MigrationParams struct {
	SourcePath     string
	SourcePassword string
	// TargetVersion zero selects CurrentVersion.
	TargetVersion uint8
	KDFIterations uint32
	TargetPath    string
	// TargetPassword empty reuses SourcePassword.
	TargetPassword string
}

// Create encrypts seed into a new current-version vault at path. An existing
// file is never overwritten.
func Create(path, password string, seed []byte, opts Options) error {
	if password == "" {
		return ErrEmptyPassword
	}
	data, err := encodeV3(seed, password, opts.KDFIterations)
	if err != nil {
		return err
	}
	return writeNew(path, data)
}

// Open decrypts the vault at path and returns the seed. Legacy files fail
// with a *VersionError wrapping ErrMigrationRequired.
func Open(path, password string) ([]byte, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.Version != CurrentVersion {
		return nil, &VersionError{Path: path, Version: h.Version}
	}
	return decodeV3(data, password)
}

// Inspect reads the header of the vault at path without decrypting it.
func Inspect(path string) (Header, error) {
	data, err := readFile(path)
	if err != nil {
		return Header{}, err
	}
	return parseHeader(data)
}

// Migrate re-encrypts a vault into a new file in the target version. All
// reads and decryption finish before anything is written, the source is
// never modified and a failure leaves no target behind.
func Migrate(p MigrationParams) error {
	target := p.TargetVersion
	if target == 0 {
		target = CurrentVersion
	}
	if target != CurrentVersion {
		return fmt.Errorf("%w: cannot write version %d", ErrUnsupportedVersion, target)
	}
	same, err := samePath(p.SourcePath, p.TargetPath)
	if err != nil {
		return err
	}
	if same {
		return ErrSameTarget
	}
	password := p.TargetPassword
	if password == "" {
		password = p.SourcePassword
	}
	if password == "" {
		return ErrEmptyPassword
	}

	data, err := readFile(p.SourcePath)
	if err != nil {
		return err
	}
	seed, _, err := decodeAny(data, p.SourcePassword)
	if err != nil {
		return err
	}
	defer wipe(seed)

	out, err := encodeV3(seed, password, p.KDFIterations)
	if err != nil {
		return err
	}
	check, err := decodeV3(out, password)
	if err != nil {
		return fmt.Errorf("vault: verify migrated data: %w", err)
	}
	defer wipe(check)
	if string(check) != string(seed) {
		return fmt.Errorf("vault: verify migrated data: %w", ErrChecksumMismatch)
	}

	return writeNew(p.TargetPath, out)
}

// ChangePassword re-encrypts a current-version vault in place under a new password.
func ChangePassword(path, oldPassword, newPassword string, opts Options) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}

	mu.Lock()
	defer mu.Unlock()
	lock, err := lockSidecar(path, false)
	if err != nil {
		return err
	}
	defer unlockSidecar(lock)

	seed, err := Open(path, oldPassword)
	if err != nil {
		return err
	}
	defer wipe(seed)

	iterations := opts.KDFIterations
	if iterations == 0 {
		if h, err := Inspect(path); err == nil {
			iterations = h.KDFIterations
		}
	}
	data, err := encodeV3(seed, newPassword, iterations)
	if err != nil {
		return err
	}
	return writeAtomic(path, data, true)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVaultNotFound, path)
		}
		return nil, fmt.Errorf("vault: read %s: %w", path, err)
	}
	return data, nil
}

// writeNew writes data to a path that must not exist yet, holding the sidecar lock.
func writeNew(path string, data []byte) error {
	mu.Lock()
	defer mu.Unlock()
	lock, err := lockSidecar(path, false)
	if err != nil {
		return err
	}
	defer unlockSidecar(lock)
	return writeAtomic(path, data, false)
}

// writeAtomic writes data to a temp file in the target directory, syncs it and
// renames it over path. With overwrite unset an existing path is an error.
func writeAtomic(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Lstat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrVaultExists, path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("vault: stat %s: %w", path, err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("vault: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("vault: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("vault: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("vault: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("vault: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("vault: rename into place: %w", err)
	}
	committed = true
	syncDir(dir)
	return nil
}

// syncDir flushes the directory entry of a rename; not all platforms support it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("vault: resolve %s: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("vault: resolve %s: %w", b, err)
	}
	if absA == absB {
		return true, nil
	}
	ia, errA := os.Stat(absA)
	ib, errB := os.Stat(absB)
	if errA == nil && errB == nil && os.SameFile(ia, ib) {
		return true, nil
	}
	return false, nil
}
