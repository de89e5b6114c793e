//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// memguard buffers are still guarded, but the rest of the process can be paged out
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
