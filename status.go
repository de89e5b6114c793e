package zerotrust

import (
	"context"
	"time"
)

// Status is a point-in-time view of the vault.
type Status struct {
	State            State         `json:"state"`
	Deadline         *time.Time    `json:"deadline,omitempty"`
	Remaining        time.Duration `json:"remaining_ns,omitempty"`
	Length           *int          `json:"length,omitempty"` // only reported while unlocked
	Capacity         int           `json:"capacity"`
	SessionTTL       time.Duration `json:"session_ttl_ns"`
	MemoryProtection string        `json:"memory_protection"`
}

// Status reports the lock state and, while unlocked, the session deadline and
// the stored length. It never reveals secret bytes.
func (v *Vault) Status(ctx context.Context) (Status, error) {
	if err := v.acquire(ctx, v.newRequestID(), "status"); err != nil {
		return Status{}, err
	}
	defer v.release()

	if v.closed {
		return Status{}, ErrClosed
	}

	st := Status{
		State:            v.gate.state,
		Capacity:         MaxSecretSize,
		SessionTTL:       v.ttl,
		MemoryProtection: v.memoryProtectionLevel.String(),
	}
	if v.gate.isOpen() {
		length := v.store.size()
		st.Length = &length
		if deadline := v.timer.deadlineAt(); !deadline.IsZero() {
			st.Deadline = &deadline
			st.Remaining = time.Until(deadline)
		}
	}
	return st, nil
}
