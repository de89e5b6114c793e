package zerotrust

import (
	"errors"
	"fmt"
)

var (
	// ErrDenied is the root of every authorization failure. Both a rejected
	// credential and an operation attempted on a locked vault satisfy
	// errors.Is(err, ErrDenied).
	ErrDenied = errors.New("access denied")

	// ErrInvalidCredential is returned by Unlock when the submitted PIN does not match.
	ErrInvalidCredential = fmt.Errorf("invalid pin: %w", ErrDenied)

	// ErrAccessDenied is returned by read and write operations while the vault is locked.
	ErrAccessDenied = fmt.Errorf("vault is locked: %w", ErrDenied)

	// ErrInterrupted reports that the caller's context ended while waiting for
	// the vault lock. The operation never started.
	ErrInterrupted = errors.New("interrupted while waiting for vault lock")

	// ErrTransferFault reports that bytes could not be obtained from, or
	// delivered to, the caller. The vault state is unchanged.
	ErrTransferFault = errors.New("transfer fault")

	// ErrInvalidRequest reports a malformed request or an unknown control code.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrClosed is returned by every operation once Close has been called.
	ErrClosed = errors.New("vault is closed")
)

func interrupted(cause error) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

func transferFault(op string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrTransferFault, op, cause)
}

func invalidRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
