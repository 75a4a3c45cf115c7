//go:build unix

package vault

import (
	"fmt"
	"os"
	"syscall"
)

// lockSidecar takes an exclusive advisory lock on vaultPath's ".lock" sidecar.
// With wait unset it fails immediately when another process holds the lock.
func lockSidecar(vaultPath string, wait bool) (*os.File, error) {
	f, err := os.OpenFile(vaultPath+lockSuffix, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("vault: open lock file: %w", err)
	}
	how := syscall.LOCK_EX
	if !wait {
		how |= syscall.LOCK_NB
	}
	if err := syscall.Flock(int(f.Fd()), how); err != nil {
		_ = f.Close()
		if !wait {
			return nil, fmt.Errorf("%w: %s", ErrLocked, vaultPath)
		}
		return nil, fmt.Errorf("vault: acquire lock: %w", err)
	}
	return f, nil
}

// unlockSidecar releases the lock. The sidecar file stays in place.
func unlockSidecar(f *os.File) {
	if f == nil {
		return
	}
	_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	_ = f.Close()
}
