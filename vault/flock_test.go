//go:build unix

package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockSidecar_CreatesLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")

	fl, err := lockSidecar(path, true)
	require.NoError(t, err)
	defer unlockSidecar(fl)

	_, err = os.Stat(path + lockSuffix)
	assert.NoError(t, err)
}

func TestLockSidecar_SecondWriterFailsFast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")

	fl1, err := lockSidecar(path, true)
	require.NoError(t, err)
	defer unlockSidecar(fl1)

	fl2, err := lockSidecar(path, false)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Nil(t, fl2)
}

func TestLockSidecar_ReleaseThenReacquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.vault")

	fl1, err := lockSidecar(path, true)
	require.NoError(t, err)
	unlockSidecar(fl1)

	fl2, err := lockSidecar(path, false)
	require.NoError(t, err)
	unlockSidecar(fl2)
}
