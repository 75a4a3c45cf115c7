package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrVaultExists indicates the destination file is already present.
	ErrVaultExists = errors.New("vault: file already exists")

	// ErrVaultNotFound indicates the vault file does not exist.
	ErrVaultNotFound = errors.New("vault: file not found")

	// ErrInvalidFormat indicates a file that is not a vault or is truncated.
	ErrInvalidFormat = errors.New("vault: invalid file format")

	// ErrMigrationRequired indicates a legacy vault that must be migrated before use.
	ErrMigrationRequired = errors.New("vault: migration required")

	// ErrUnsupportedVersion indicates a format version this build cannot read or write.
	ErrUnsupportedVersion = errors.New("vault: unsupported version")

	// ErrDecryptionFailed indicates wrong password or corrupted data.
	ErrDecryptionFailed = errors.New("vault: decryption failed (wrong password or corrupted data)")

	// ErrChecksumMismatch indicates the decrypted seed failed its checksum.
	ErrChecksumMismatch = errors.New("vault: seed checksum mismatch")

	// ErrSameTarget indicates a migration whose target is the source file.
	ErrSameTarget = errors.New("vault: migration target must differ from source")

	// ErrInvalidSeed indicates an empty seed.
	ErrInvalidSeed = errors.New("vault: invalid seed")

	// ErrLocked indicates another process is writing the same vault file.
	ErrLocked = errors.New("vault: file is locked by another process")

	// ErrEmptyPassword indicates an attempt to encrypt with an empty password.
	ErrEmptyPassword = errors.New("vault: password must not be empty")
)

// VersionError reports the version found in a vault file that cannot be opened directly.
type VersionError struct {
	Path    string
	Version uint8
}

func (e *VersionError) Error() string {
	if e.Version < CurrentVersion && e.Version >= Version2 {
		return fmt.Sprintf("vault: %s uses format version %d, migrate to version %d", e.Path, e.Version, CurrentVersion)
	}
	return fmt.Sprintf("vault: %s uses unsupported format version %d", e.Path, e.Version)
}

// Unwrap maps legacy versions to ErrMigrationRequired and everything else to ErrUnsupportedVersion.
func (e *VersionError) Unwrap() error {
	if e.Version < CurrentVersion && e.Version >= Version2 {
		return ErrMigrationRequired
	}
	return ErrUnsupportedVersion
}
