package zerotrust

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretStoreWipesStaleTail(t *testing.T) {
	s, err := newSecretStore()
	require.NoError(t, err)
	defer s.destroy()

	_, err = s.write(strings.NewReader("longer-secret"), 13)
	require.NoError(t, err)
	_, err = s.write(strings.NewReader("ab"), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, s.size())
	assert.Equal(t, make([]byte, 11), s.buf.Bytes()[2:13])
}

func TestSecretStoreShortSource(t *testing.T) {
	s, err := newSecretStore()
	require.NoError(t, err)
	defer s.destroy()

	_, err = s.write(strings.NewReader("keep"), 4)
	require.NoError(t, err)

	_, err = s.write(strings.NewReader("abc"), 10)
	assert.ErrorIs(t, err, ErrTransferFault)

	var out bytes.Buffer
	n, err := s.read(&out, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "keep", out.String())
}

func TestSecretStoreReadNilDestination(t *testing.T) {
	s, err := newSecretStore()
	require.NoError(t, err)
	defer s.destroy()

	_, err = s.write(strings.NewReader("x"), 1)
	require.NoError(t, err)

	_, err = s.read(nil, 0, 1)
	assert.ErrorIs(t, err, ErrTransferFault)
}

func TestSecretStoreReadClampsWithoutOverflow(t *testing.T) {
	s, err := newSecretStore()
	require.NoError(t, err)
	defer s.destroy()

	_, err = s.write(strings.NewReader("abcdef"), 6)
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := s.read(&out, 2, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "cdef", out.String())
}
