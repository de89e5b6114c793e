package zerotrust

import (
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// secretStore holds the secret bytes in a guarded memguard buffer. It carries
// no authorization logic; callers must hold the vault lock and have checked
// the gate.
type secretStore struct {
	buf    *memguard.LockedBuffer
	length int
}

func newSecretStore() (*secretStore, error) {
	buf := memguard.NewBuffer(MaxSecretSize)
	if !buf.IsAlive() {
		return nil, fmt.Errorf("failed to allocate %d byte secret buffer", MaxSecretSize)
	}
	return &secretStore{buf: buf}, nil
}

// write replaces the stored secret with min(n, MaxSecretSize) bytes read from
// src. The bytes are staged in a scratch buffer so that a failing source
// leaves the previous secret untouched.
func (s *secretStore) write(src io.Reader, n int) (int, error) {
	if n > MaxSecretSize {
		n = MaxSecretSize
	}

	if n > 0 {
		if src == nil {
			return 0, transferFault("write", fmt.Errorf("no source"))
		}

		scratch := memguard.NewBuffer(n)
		defer scratch.Destroy()

		if _, err := io.ReadFull(src, scratch.Bytes()); err != nil {
			return 0, transferFault("write", err)
		}
		copy(s.buf.Bytes(), scratch.Bytes())
	}

	// stale tail of a longer previous secret
	if s.length > n {
		memguard.WipeBytes(s.buf.Bytes()[n:s.length])
	}
	s.length = n
	return n, nil
}

// read delivers up to n bytes starting at cursor to dst. A cursor at or past
// the stored length yields zero bytes.
func (s *secretStore) read(dst io.Writer, cursor int64, n int) (int, error) {
	if cursor >= int64(s.length) || n == 0 {
		return 0, nil
	}

	// min(n, length-cursor) without computing cursor+n
	end := int64(s.length)
	if rem := end - cursor; int64(n) < rem {
		end = cursor + int64(n)
	}
	chunk := s.buf.Bytes()[cursor:end]

	if dst == nil {
		return 0, transferFault("read", fmt.Errorf("no destination"))
	}
	written, err := dst.Write(chunk)
	if err != nil {
		return 0, transferFault("read", err)
	}
	if written != len(chunk) {
		return 0, transferFault("read", io.ErrShortWrite)
	}
	return written, nil
}

func (s *secretStore) size() int {
	return s.length
}

func (s *secretStore) destroy() {
	s.buf.Destroy()
	s.length = 0
}
