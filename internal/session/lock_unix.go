//go:build !windows

package session

import (
	"os"
	"syscall"
)

// lockFile takes an exclusive advisory lock on f, blocking until granted.
func lockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

// unlockFile releases the advisory lock on f.
func unlockFile(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
