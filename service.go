package zerotrust

import (
	"context"
	"io"
)

// Service is the caller-facing surface of a vault. Transports depend on it
// rather than on *Vault so they can be exercised against fakes.
type Service interface {
	Unlock(ctx context.Context, pin int32) error
	Control(ctx context.Context, code uint32, arg io.Reader) error
	ReadAt(ctx context.Context, dst io.Writer, cursor int64, n int) (int64, int, error)
	Write(ctx context.Context, src io.Reader, n int) (int, error)
	Status(ctx context.Context) (Status, error)
}

var _ Service = (*Vault)(nil)
