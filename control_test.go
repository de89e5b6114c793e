package zerotrust

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCmdUnlockCode(t *testing.T) {
	assert.Equal(t, uint32(0x40047601), CmdUnlock)
}

func TestControlUnlock(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	err := v.Control(ctx, CmdUnlock, bytes.NewReader(EncodePIN(7)))
	assert.ErrorIs(t, err, ErrInvalidCredential)

	require.NoError(t, v.Control(ctx, CmdUnlock, bytes.NewReader(EncodePIN(testPIN))))
	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Unlocked, st.State)
}

func TestControlShortArgument(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	err := v.Control(ctx, CmdUnlock, bytes.NewReader([]byte{0x39, 0x05}))
	assert.ErrorIs(t, err, ErrTransferFault)

	err = v.Control(ctx, CmdUnlock, nil)
	assert.ErrorIs(t, err, ErrTransferFault)

	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State)
}

func TestControlUnknownCode(t *testing.T) {
	v := createTestVault(t, time.Minute)
	ctx := context.Background()

	for _, code := range []uint32{0, CmdUnlock + 1, 0xc0047601} {
		err := v.Control(ctx, code, bytes.NewReader(EncodePIN(testPIN)))
		assert.ErrorIs(t, err, ErrInvalidRequest, "code %#x", code)
		assert.NotErrorIs(t, err, ErrDenied)
	}

	st, err := v.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Locked, st.State, "unknown codes change nothing")
}

func TestEncodePIN(t *testing.T) {
	assert.Equal(t, []byte{0x39, 0x05, 0x00, 0x00}, EncodePIN(1337))
}
