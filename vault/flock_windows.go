//go:build windows

package vault

import (
	"fmt"
	"os"
)

// lockSidecar opens the ".lock" sidecar without a cross-process lock; callers
// in one process are still serialized by the package mutex.
func lockSidecar(vaultPath string, _ bool) (*os.File, error) {
	f, err := os.OpenFile(vaultPath+lockSuffix, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("vault: open lock file: %w", err)
	}
	return f, nil
}

func unlockSidecar(f *os.File) {
	if f == nil {
		return
	}
	_ = f.Close()
}
