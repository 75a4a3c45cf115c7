package vault

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSeed = bytes.Repeat([]byte{0x42}, 64)

func writeLegacy(t *testing.T, path, password string) []byte {
	t.Helper()
	data, err := encodeV2(testSeed, password)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return data
}

// --- Create / Open tests ---

func TestCreateOpen_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")
	require.NoError(t, Create(path, "hunter2", testSeed, Options{KDFIterations: 1}))

	seed, err := Open(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)

	h, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, Header{Version: Version3, KDFIterations: 1}, h)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestOpen_WrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")
	require.NoError(t, Create(path, "right", testSeed, Options{KDFIterations: 1}))

	_, err := Open(path, "wrong")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpen_TamperedHeaderFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")
	require.NoError(t, Create(path, "pw", testSeed, Options{KDFIterations: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	// Flip a salt byte: the header is authenticated.
	data[prefixLen+4] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0600))

	_, err = Open(path, "pw")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestCreate_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")
	require.NoError(t, Create(path, "pw", testSeed, Options{KDFIterations: 1}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	err = Create(path, "pw", []byte("other seed material"), Options{KDFIterations: 1})
	assert.ErrorIs(t, err, ErrVaultExists)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreate_Validation(t *testing.T) {
	dir := t.TempDir()
	assert.ErrorIs(t, Create(filepath.Join(dir, "a"), "", testSeed, Options{}), ErrEmptyPassword)
	assert.ErrorIs(t, Create(filepath.Join(dir, "b"), "pw", nil, Options{}), ErrInvalidSeed)
}

func TestOpen_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing"), "pw")
	assert.ErrorIs(t, err, ErrVaultNotFound)

	garbage := filepath.Join(dir, "garbage")
	require.NoError(t, os.WriteFile(garbage, []byte("not a vault"), 0600))
	_, err = Open(garbage, "pw")
	assert.ErrorIs(t, err, ErrInvalidFormat)

	future := filepath.Join(dir, "future")
	require.NoError(t, os.WriteFile(future, append(magic[:], 9, 0, 0, 0), 0600))
	_, err = Open(future, "pw")
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.NotErrorIs(t, err, ErrMigrationRequired)
}

func TestOpen_LegacyRequiresMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.vault")
	writeLegacy(t, path, "pw")

	_, err := Open(path, "pw")
	require.ErrorIs(t, err, ErrMigrationRequired)
	var ve *VersionError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, Version2, ve.Version)
}

// --- Migration tests ---

func TestMigrate_LegacyToCurrent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "legacy.vault")
	dst := filepath.Join(dir, "current.vault")
	original := writeLegacy(t, src, "old")

	err := Migrate(MigrationParams{
		SourcePath:     src,
		SourcePassword: "old",
		KDFIterations:  1,
		TargetPath:     dst,
		TargetPassword: "new",
	})
	require.NoError(t, err)

	seed, err := Open(dst, "new")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, after, "source must stay byte-identical")
}

func TestMigrate_EmptyTargetPasswordReusesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "legacy.vault")
	dst := filepath.Join(dir, "current.vault")
	writeLegacy(t, src, "same")

	require.NoError(t, Migrate(MigrationParams{
		SourcePath: src, SourcePassword: "same", KDFIterations: 1, TargetPath: dst,
	}))
	seed, err := Open(dst, "same")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)
}

func TestMigrate_FailsClosed(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "legacy.vault")
	original := writeLegacy(t, src, "pw")

	t.Run("wrong source password writes nothing", func(t *testing.T) {
		dst := filepath.Join(dir, "wrong.vault")
		err := Migrate(MigrationParams{SourcePath: src, SourcePassword: "nope", TargetPath: dst, KDFIterations: 1})
		assert.ErrorIs(t, err, ErrDecryptionFailed)
		_, statErr := os.Stat(dst)
		assert.True(t, errors.Is(statErr, os.ErrNotExist))
	})

	t.Run("existing target is kept", func(t *testing.T) {
		dst := filepath.Join(dir, "taken.vault")
		require.NoError(t, os.WriteFile(dst, []byte("occupied"), 0600))
		err := Migrate(MigrationParams{SourcePath: src, SourcePassword: "pw", TargetPath: dst, KDFIterations: 1})
		assert.ErrorIs(t, err, ErrVaultExists)
		content, readErr := os.ReadFile(dst)
		require.NoError(t, readErr)
		assert.Equal(t, "occupied", string(content))
	})

	t.Run("target equals source", func(t *testing.T) {
		err := Migrate(MigrationParams{SourcePath: src, SourcePassword: "pw", TargetPath: src})
		assert.ErrorIs(t, err, ErrSameTarget)
	})

	t.Run("unsupported target version", func(t *testing.T) {
		err := Migrate(MigrationParams{
			SourcePath: src, SourcePassword: "pw", TargetVersion: Version2,
			TargetPath: filepath.Join(dir, "v2.vault"),
		})
		assert.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	after, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, original, after)
}

func TestMigrate_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "legacy.vault")
	writeLegacy(t, src, "pw")
	require.NoError(t, Migrate(MigrationParams{
		SourcePath: src, SourcePassword: "pw", KDFIterations: 1,
		TargetPath: filepath.Join(dir, "current.vault"),
	}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"legacy.vault", "current.vault", "current.vault.lock"}, names)
}

// --- Password change tests ---

func TestChangePassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")
	require.NoError(t, Create(path, "old", testSeed, Options{KDFIterations: 2}))

	assert.ErrorIs(t, ChangePassword(path, "bad", "new", Options{}), ErrDecryptionFailed)
	assert.ErrorIs(t, ChangePassword(path, "old", "", Options{}), ErrEmptyPassword)

	require.NoError(t, ChangePassword(path, "old", "new", Options{}))
	_, err := Open(path, "old")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	seed, err := Open(path, "new")
	require.NoError(t, err)
	assert.Equal(t, testSeed, seed)

	h, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), h.KDFIterations, "iteration count is kept")
}

func TestChangePassword_LegacyRequiresMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.vault")
	writeLegacy(t, path, "pw")
	assert.ErrorIs(t, ChangePassword(path, "pw", "new", Options{}), ErrMigrationRequired)
}

// --- Format tests ---

func TestDecodeV2_Checksum(t *testing.T) {
	data, err := encodeV2(testSeed, "pw")
	require.NoError(t, err)

	seed, version, err := decodeAny(data, "pw")
	require.NoError(t, err)
	assert.Equal(t, Version2, version)
	assert.Equal(t, testSeed, seed)

	_, _, err = decodeAny(data, "other")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestOpenPlaintext_ChecksumMismatch(t *testing.T) {
	plaintext := sealPlaintext(testSeed)
	plaintext[0] ^= 1
	_, err := openPlaintext(plaintext)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
