// Package guard unlocks a vault on presentation of a short-lived token
// derived from a shared secret, so the vault PIN itself never has to be typed.
package guard

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/mayanks4367/zero-trust/audit"
	"github.com/rs/zerolog"
)

// ErrInvalidToken is returned for a token outside the accepted windows.
var ErrInvalidToken = errors.New("invalid or expired token")

// Unlocker is anything that can open a vault with a PIN: the vault itself or
// a client talking to a running one.
type Unlocker interface {
	Unlock(ctx context.Context, pin int32) error
}

// Options configures a Guard.
type Options struct {
	// PIN submitted to the vault after a token is accepted.
	PIN int32

	Logger zerolog.Logger
	Audit  audit.Logger

	// Clock returns the current time. Nil means time.Now.
	Clock func() time.Time
}

// Guard checks tokens and forwards accepted ones as an unlock.
type Guard struct {
	secret *memguard.Enclave
	pin    int32
	target Unlocker
	log    zerolog.Logger
	audit  audit.Logger
	now    func() time.Time
}

// New creates a guard for target. The secret slice is sealed into an enclave
// and wiped; callers must not reuse it.
func New(secret []byte, target Unlocker, options Options) (*Guard, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("shared secret is empty")
	}
	if target == nil {
		return nil, fmt.Errorf("unlock target is required")
	}

	auditLogger := options.Audit
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	clock := options.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Guard{
		secret: memguard.NewEnclave(secret),
		pin:    options.PIN,
		target: target,
		log:    options.Logger,
		audit:  auditLogger,
		now:    clock,
	}, nil
}

// Token returns the currently valid token and how long it stays valid.
func (g *Guard) Token() (string, time.Duration, error) {
	key, err := g.secret.Open()
	if err != nil {
		return "", 0, fmt.Errorf("failed to open shared secret: %w", err)
	}
	defer key.Destroy()

	now := g.now()
	return Generate(key.Bytes(), now), Remaining(now), nil
}

// Submit verifies token and, when valid, unlocks the target with the
// configured PIN. An invalid token never reaches the target.
func (g *Guard) Submit(ctx context.Context, token string) error {
	requestID := uuid.NewString()

	key, err := g.secret.Open()
	if err != nil {
		return fmt.Errorf("failed to open shared secret: %w", err)
	}
	valid := Verify(key.Bytes(), token, g.now())
	key.Destroy()

	if !valid {
		g.log.Warn().Str("request_id", requestID).Msg("invalid or expired token")
		g.logAudit(requestID, audit.ActionTokenRejected, ErrInvalidToken)
		return ErrInvalidToken
	}

	if err = g.target.Unlock(ctx, g.pin); err != nil {
		g.log.Error().Err(err).Str("request_id", requestID).Msg("token accepted but unlock failed")
		return fmt.Errorf("unlock failed: %w", err)
	}

	g.log.Info().Str("request_id", requestID).Msg("token accepted, vault unlocked")
	return nil
}

// Watch reads one token per line from r and submits each. It returns nil
// after the first successful unlock, the reader's error, ctx.Err() on
// cancellation, or io.EOF when r ends without a valid token. Failed
// submissions are logged and the scan continues.
func (g *Guard) Watch(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return err
					}
				default:
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return io.EOF
			}

			token := strings.TrimSpace(line)
			if token == "" {
				continue
			}
			err := g.Submit(ctx, token)
			if err == nil {
				return nil
			}
			if !errors.Is(err, ErrInvalidToken) {
				g.log.Error().Err(err).Msg("guard submission failed")
			}
		}
	}
}

func (g *Guard) logAudit(requestID, action string, err error) {
	metadata := map[string]interface{}{
		"request_id": requestID,
		"operation":  "guard",
	}
	if err != nil {
		metadata["error"] = err.Error()
	}
	if auditErr := g.audit.Log(action, err == nil, metadata); auditErr != nil {
		g.log.Error().Err(auditErr).Str("action", action).Msg("audit logging failed")
	}
}
