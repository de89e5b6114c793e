//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package mem

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func lockMemoryPlatform() (ProtectionLevel, error) {
	err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
	if err != nil {
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.ENOSYS) {
			// no CAP_IPC_LOCK, RLIMIT_MEMLOCK too low or not implemented
			return ProtectionPartial, nil
		}
		return ProtectionNone, fmt.Errorf("failed to lock memory: %w", err)
	}
	return ProtectionFull, nil
}

func unlockMemoryPlatform() error {
	if err := unix.Munlockall(); err != nil {
		return fmt.Errorf("failed to unlock memory: %w", err)
	}
	return nil
}
