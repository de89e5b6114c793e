package zerotrust

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// Handle is a caller session on the vault. Like an open file descriptor it
// tracks its own read cursor; handles never share position.
type Handle struct {
	v   *Vault
	mu  sync.Mutex
	pos int64
}

// Open returns a new handle positioned at the start of the secret.
func (v *Vault) Open() *Handle {
	return &Handle{v: v}
}

// Read copies the next len(p) bytes of the secret into p and advances the
// handle's cursor. Zero bytes with a nil error means end-of-data.
func (h *Handle) Read(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, n, err := h.v.ReadAt(ctx, &sliceWriter{buf: p}, h.pos, len(p))
	if err != nil {
		return 0, err
	}
	h.pos = next
	return n, nil
}

// Write replaces the secret with p (truncated to MaxSecretSize) and rewinds
// the handle's cursor.
func (h *Handle) Write(ctx context.Context, p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.v.Write(ctx, bytes.NewReader(p), len(p))
	if err != nil {
		return 0, err
	}
	h.pos = 0
	return n, nil
}

// Offset returns the handle's read cursor.
func (h *Handle) Offset() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos
}

// Rewind moves the read cursor back to the start of the secret.
func (h *Handle) Rewind() {
	h.mu.Lock()
	h.pos = 0
	h.mu.Unlock()
}

// ReadAll reads from the current cursor to end-of-data.
func (h *Handle) ReadAll(ctx context.Context) ([]byte, error) {
	var out []byte
	chunk := make([]byte, 512)
	for {
		n, err := h.Read(ctx, chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return out, nil
		}
		out = append(out, chunk[:n]...)
	}
}

// sliceWriter fills a caller-owned slice and refuses to grow it.
type sliceWriter struct {
	buf []byte
	n   int
}

func (w *sliceWriter) Write(p []byte) (int, error) {
	if len(p) > len(w.buf)-w.n {
		return 0, io.ErrShortBuffer
	}
	w.n += copy(w.buf[w.n:], p)
	return len(p), nil
}
