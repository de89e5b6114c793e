package zerotrust

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mayanks4367/zero-trust/audit"
	"github.com/mayanks4367/zero-trust/internal/mem"
	"github.com/mayanks4367/zero-trust/internal/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Vault is the single access-gated secret store of a process.
//
// The lock state, the secret bytes and their length form one guarded unit.
// A weight-one semaphore serializes every operation that touches that unit,
// including the auto-lock expiry, so checking the gate and acting on the
// store always happen in the same critical section.
type Vault struct {
	sem   *semaphore.Weighted
	store *secretStore
	gate  *accessGate
	timer *autoLockTimer
	ttl   time.Duration

	memoryProtectionLevel mem.ProtectionLevel
	memoryLocked          bool

	audit   audit.Logger
	log     zerolog.Logger
	metrics *metrics.Collector

	// the principal running the vault
	userID string

	closed bool
}

// New creates a locked, empty vault.
//
// The function performs the following initialization steps:
//  1. Validates configuration options
//  2. Sets up memory protection when requested (best-effort)
//  3. Allocates the guarded secret buffer
//  4. Creates the access gate with the configured PIN and an unarmed auto-lock timer
//  5. Establishes audit logging
//
// Parameters:
//   - options: PIN, session length, memory locking, logger and metrics
//   - auditLogger: Logger for security events (nil creates no-op logger)
//
// Returns:
//   - *Vault: a vault in the Locked state holding an empty secret
//   - error: invalid options or failure to allocate the guarded buffer
//
// Error Conditions:
//   - SessionTTL is not positive
//   - The secret buffer cannot be allocated; the vault must not start
//
// Example:
//
//	opts := zerotrust.DefaultOptions()
//	v, err := zerotrust.New(opts, nil)
//	if err != nil {
//	    return fmt.Errorf("failed to create vault: %w", err)
//	}
//	defer v.Close()
func New(options Options, auditLogger audit.Logger) (*Vault, error) {
	if options.SessionTTL == 0 {
		options.SessionTTL = DefaultSessionTTL
	}
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	userID := options.UserID
	if userID == "" {
		userID = "system"
	}

	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}

	collector := options.Metrics
	if collector == nil {
		collector = metrics.New()
	}

	v := &Vault{
		sem:                   semaphore.NewWeighted(1),
		gate:                  newAccessGate(options.PIN),
		ttl:                   options.SessionTTL,
		memoryProtectionLevel: mem.ProtectionPartial, // memguard buffers are always guarded
		audit:                 auditLogger,
		log:                   options.Logger,
		metrics:               collector,
		userID:                userID,
	}
	v.timer = newAutoLockTimer(v.autoLock)

	if options.EnableMemoryLock {
		level, err := mem.Lock()
		if err != nil {
			v.log.Warn().Err(err).Msg("cannot fully protect memory, guarded buffers still protect the secret")
		}
		v.memoryProtectionLevel = level
		v.memoryLocked = level == mem.ProtectionFull
	}

	store, err := newSecretStore()
	if err != nil {
		if v.memoryLocked {
			_ = mem.Unlock()
		}
		return nil, err
	}
	v.store = store

	v.metrics.Unlocked.Set(0)
	v.log.Info().
		Dur("session_ttl", v.ttl).
		Str("memory_protection", v.memoryProtectionLevel.String()).
		Msg("zero-trust vault registered, state LOCKED")
	v.logAudit(v.newRequestID(), audit.ActionInitialized, nil, map[string]interface{}{
		"session_ttl_ms":    v.ttl.Milliseconds(),
		"capacity":          MaxSecretSize,
		"memory_protection": v.memoryProtectionLevel.String(),
	})

	return v, nil
}

// Unlock opens the vault when pin matches the configured credential.
//
// A successful unlock arms the auto-lock timer for SessionTTL from now. If the
// vault is already open the call refreshes the session: the previous deadline
// is replaced, never stacked. A mismatch leaves the state untouched and is not
// penalized beyond the equality check.
//
// Error Conditions:
//   - ErrInvalidCredential (errors.Is ErrDenied): pin mismatch
//   - ErrInterrupted: ctx ended while waiting for the vault lock
//   - ErrClosed: the vault has been torn down
func (v *Vault) Unlock(ctx context.Context, pin int32) error {
	requestID := v.newRequestID()

	if err := v.acquire(ctx, requestID, "unlock"); err != nil {
		return err
	}

	if v.closed {
		v.release()
		return ErrClosed
	}

	if !v.gate.verify(pin) {
		v.release()
		v.metrics.Unlocks.WithLabelValues("denied").Inc()
		v.log.Error().Str("request_id", requestID).Msg("invalid pin")
		v.logAudit(requestID, audit.ActionAuthFailure, ErrInvalidCredential, map[string]interface{}{
			"operation": "unlock",
		})
		return ErrInvalidCredential
	}

	refreshed := v.gate.open()
	v.timer.arm(v.ttl)
	deadline := v.timer.deadlineAt()
	v.metrics.Unlocked.Set(1)
	v.release()

	v.metrics.Unlocks.WithLabelValues("success").Inc()
	v.log.Info().
		Str("request_id", requestID).
		Bool("refreshed", refreshed).
		Time("deadline", deadline).
		Msgf("pin accepted, vault unlocked for %s", v.ttl)
	v.logAudit(requestID, audit.ActionUnlock, nil, map[string]interface{}{
		"operation": "unlock",
		"refreshed": refreshed,
		"deadline":  deadline.UTC(),
	})
	return nil
}

// ReadAt delivers up to n bytes of the secret starting at cursor to dst.
//
// The cursor belongs to the caller; the vault does not remember it. A cursor
// at or past the stored length yields zero bytes, which signals end-of-data
// and is not an error. dst is written while the vault lock is held and should
// be an in-memory sink.
//
// Returns the advanced cursor and the number of bytes delivered. On any error
// the cursor is returned unchanged and no secret byte has been handed out by
// the vault unless the gate was open.
//
// Error Conditions:
//   - ErrAccessDenied (errors.Is ErrDenied): the vault is locked
//   - ErrInterrupted: ctx ended while waiting for the vault lock
//   - ErrTransferFault: dst rejected the bytes
//   - ErrInvalidRequest: negative cursor or length on an open vault
//   - ErrClosed: the vault has been torn down
func (v *Vault) ReadAt(ctx context.Context, dst io.Writer, cursor int64, n int) (int64, int, error) {
	requestID := v.newRequestID()

	var written int
	err := v.withOpenGate(ctx, requestID, "read", func() error {
		if cursor < 0 || n < 0 {
			return invalidRequest("negative cursor %d or length %d", cursor, n)
		}
		var err error
		written, err = v.store.read(dst, cursor, n)
		return err
	})
	if err != nil {
		v.reportFailure(requestID, "read", audit.ActionSecretRead, err, map[string]interface{}{
			"cursor": cursor,
		})
		return cursor, 0, err
	}

	v.metrics.BytesRead.Add(float64(written))
	v.logAudit(requestID, audit.ActionSecretRead, nil, map[string]interface{}{
		"operation": "read",
		"cursor":    cursor,
		"bytes":     written,
	})
	return cursor + int64(written), written, nil
}

// Write replaces the whole secret with min(n, MaxSecretSize) bytes read from src.
//
// Truncation to capacity is silent; the accepted length is returned. The
// bytes are staged before being committed, so a source that fails part way
// leaves the previous secret in place. A successful write resets the caller's
// read cursor to zero; callers tracking their own cursor must do so.
//
// Error Conditions:
//   - ErrAccessDenied (errors.Is ErrDenied): the vault is locked
//   - ErrInterrupted: ctx ended while waiting for the vault lock
//   - ErrTransferFault: src could not supply the bytes
//   - ErrInvalidRequest: negative length on an open vault
//   - ErrClosed: the vault has been torn down
func (v *Vault) Write(ctx context.Context, src io.Reader, n int) (int, error) {
	requestID := v.newRequestID()

	var stored int
	err := v.withOpenGate(ctx, requestID, "write", func() error {
		if n < 0 {
			return invalidRequest("negative length %d", n)
		}
		var err error
		stored, err = v.store.write(src, n)
		return err
	})
	if err != nil {
		v.reportFailure(requestID, "write", audit.ActionSecretWrite, err, map[string]interface{}{
			"requested": n,
		})
		return 0, err
	}

	v.metrics.BytesWritten.Add(float64(stored))
	if stored < n {
		v.log.Debug().Str("request_id", requestID).Int("requested", n).Int("stored", stored).Msg("secret truncated to capacity")
	}
	v.logAudit(requestID, audit.ActionSecretWrite, nil, map[string]interface{}{
		"operation": "write",
		"requested": n,
		"bytes":     stored,
	})
	return stored, nil
}

// Close tears the vault down. The auto-lock timer is cancelled synchronously
// before the guarded state is destroyed, so no expiry can observe freed
// memory. Close is idempotent.
func (v *Vault) Close() error {
	requestID := v.newRequestID()

	v.timer.cancel()

	_ = v.sem.Acquire(context.Background(), 1)
	if v.closed {
		v.sem.Release(1)
		return nil
	}
	v.closed = true
	v.gate.forceLock()
	v.store.destroy()
	v.metrics.Unlocked.Set(0)
	v.sem.Release(1)

	var errs []error

	v.log.Info().Msg("secret vault unregistered")
	v.logAudit(requestID, audit.ActionShutdown, nil, nil)

	if err := v.audit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close audit logger: %w", err))
	}
	if v.memoryLocked {
		if err := mem.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// SecureMemoryProtection describes the memory protection achieved at construction.
func (v *Vault) SecureMemoryProtection() string {
	return v.memoryProtectionLevel.String()
}

// autoLock is the expiry callback of the auto-lock timer. It takes the same
// lock as every foreground operation and never touches the secret bytes.
func (v *Vault) autoLock(gen uint64) {
	_ = v.sem.Acquire(context.Background(), 1)
	if !v.timer.claim(gen) {
		v.sem.Release(1)
		return
	}
	v.gate.forceLock()
	v.metrics.Unlocked.Set(0)
	v.sem.Release(1)

	v.metrics.AutoLocks.Inc()
	v.log.Info().Msg("timeout reached, vault auto-locked")
	v.logAudit(v.newRequestID(), audit.ActionAutoLock, nil, nil)
}

// acquire takes the vault lock, giving up with ErrInterrupted when ctx ends first.
func (v *Vault) acquire(ctx context.Context, requestID, op string) error {
	err := ctx.Err()
	if err == nil {
		err = v.sem.Acquire(ctx, 1)
	}
	if err == nil {
		return nil
	}

	v.metrics.Interrupted.Inc()
	v.log.Debug().Err(err).Str("request_id", requestID).Str("op", op).Msg("wait for vault lock interrupted")
	v.logAudit(requestID, audit.ActionInterrupted, err, map[string]interface{}{
		"operation": op,
	})
	return interrupted(err)
}

func (v *Vault) release() {
	v.sem.Release(1)
}

// withOpenGate runs fn under the vault lock once the vault is known to be
// open. The lock is released even if fn panics. Arguments are validated
// inside fn so a locked vault answers ErrAccessDenied before anything else.
func (v *Vault) withOpenGate(ctx context.Context, requestID, op string, fn func() error) error {
	if err := v.acquire(ctx, requestID, op); err != nil {
		return err
	}
	defer v.release()

	if v.closed {
		return ErrClosed
	}
	if !v.gate.isOpen() {
		return ErrAccessDenied
	}
	return fn()
}

// reportFailure logs and audits a failed read or write after the lock is released.
func (v *Vault) reportFailure(requestID, op, action string, err error, metadata map[string]interface{}) {
	switch {
	case errors.Is(err, ErrInterrupted), errors.Is(err, ErrClosed):
		// acquire reported the interruption; a closed vault has nothing to audit
	case errors.Is(err, ErrAccessDenied):
		v.deny(requestID, op)
	case errors.Is(err, ErrInvalidRequest):
		v.rejectInvalid(requestID, op, err)
	default:
		v.log.Error().Err(err).Str("request_id", requestID).Msgf("secret %s failed", op)
		metadata["operation"] = op
		v.logAudit(requestID, action, err, metadata)
	}
}

func (v *Vault) deny(requestID, op string) {
	v.metrics.Denied.WithLabelValues(op).Inc()
	v.log.Warn().Str("request_id", requestID).Msgf("unauthorized %s attempt", op)
	v.logAudit(requestID, audit.ActionUnauthorizedAccess, ErrAccessDenied, map[string]interface{}{
		"operation": op,
	})
}

func (v *Vault) rejectInvalid(requestID, op string, err error) {
	v.metrics.InvalidRequests.Inc()
	v.log.Warn().Err(err).Str("request_id", requestID).Str("op", op).Msg("invalid request")
	v.logAudit(requestID, audit.ActionInvalidRequest, err, map[string]interface{}{
		"operation": op,
	})
}

func (v *Vault) logAudit(requestID, action string, err error, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	metadata["user_id"] = v.userID
	metadata["request_id"] = requestID

	success := err == nil
	if err != nil {
		metadata["error"] = err.Error()
	}

	if auditErr := v.audit.Log(action, success, metadata); auditErr != nil {
		v.log.Error().Err(auditErr).Str("action", action).Msg("audit logging failed")
	}
}

func (v *Vault) newRequestID() string {
	return uuid.NewString()
}
