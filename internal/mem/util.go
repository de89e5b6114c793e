package mem

// ProtectionLevel indicates how well the vault can protect memory
type ProtectionLevel int

const (
	ProtectionNone    ProtectionLevel = iota // No memory protection available
	ProtectionPartial                        // Guarded buffers only, process memory may be swapped
	ProtectionFull                           // Whole process memory locked
)

func (l ProtectionLevel) String() string {
	switch l {
	case ProtectionFull:
		return "Full - process memory locked"
	case ProtectionPartial:
		return "Partial - guarded buffers only, other memory may be swapped to disk"
	default:
		return "None - sensitive data may be swapped to disk"
	}
}

// Lock attempts to prevent sensitive data from being swapped to disk.
// Returns the protection level achieved and any error encountered.
func Lock() (ProtectionLevel, error) {
	return lockMemoryPlatform()
}

// Unlock releases memory locks if they were applied
func Unlock() error {
	return unlockMemoryPlatform()
}
