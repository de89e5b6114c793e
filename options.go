package zerotrust

import (
	"fmt"
	"time"

	"github.com/mayanks4367/zero-trust/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	// MaxSecretSize is the capacity of the secret buffer. Longer writes are truncated.
	MaxSecretSize = 4096

	// DefaultPIN is the credential used when none is configured.
	DefaultPIN int32 = 1337

	// DefaultSessionTTL is how long a successful unlock keeps the vault open.
	DefaultSessionTTL = 30 * time.Second
)

// Options represents the configuration parameters for vault construction.
//
// The credential and the session length are fixed for the lifetime of a vault:
// they are read once by New and cannot be changed afterwards. Sensitive fields
// are excluded from serialization so that an Options value can be logged or
// written to a config dump without exposing the PIN.
type Options struct {
	// PIN is the single shared credential that opens the vault. It is compared
	// by exact equality; it is neither hashed nor salted.
	PIN int32 `json:"-"`

	// SessionTTL is the time between the latest successful unlock and the
	// automatic relock.
	SessionTTL time.Duration `json:"session_ttl"`

	// EnableMemoryLock asks the process to mlockall its memory at construction
	// so that the secret cannot be paged to disk. Failure to lock is not fatal.
	EnableMemoryLock bool `json:"enable_memory_lock"`

	// UserID identifies the principal running the vault in audit events.
	UserID string `json:"user_id,omitempty"`

	// Logger receives operational log messages. The zero value discards them.
	Logger zerolog.Logger `json:"-"`

	// Metrics receives vault counters. Nil creates an unregistered collector.
	Metrics *metrics.Collector `json:"-"`
}

// DefaultOptions returns options with the default PIN and session length.
func DefaultOptions() Options {
	return Options{
		PIN:        DefaultPIN,
		SessionTTL: DefaultSessionTTL,
		Logger:     zerolog.Nop(),
	}
}

// Validate validates the Options configuration
func (o Options) Validate() error {
	if o.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", o.SessionTTL)
	}
	return nil
}
