package zerotrust

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/awnumar/memguard"
)

// Control request codes follow the Linux ioctl layout:
// direction<<30 | argument size<<16 | magic<<8 | number.
const (
	controlMagic = 'v'
	iocWrite     = 1

	// CmdUnlock carries a 4-byte little-endian PIN.
	CmdUnlock uint32 = iocWrite<<30 | 4<<16 | controlMagic<<8 | 1
)

// Control dispatches a numeric control request. CmdUnlock reads its PIN
// argument from arg and behaves exactly like Unlock. Any other code is
// rejected with ErrInvalidRequest and changes nothing.
func (v *Vault) Control(ctx context.Context, code uint32, arg io.Reader) error {
	switch code {
	case CmdUnlock:
		if arg == nil {
			return transferFault("control", fmt.Errorf("missing pin argument"))
		}
		var raw [4]byte
		if _, err := io.ReadFull(arg, raw[:]); err != nil {
			return transferFault("control", err)
		}
		pin := int32(binary.LittleEndian.Uint32(raw[:]))
		memguard.WipeBytes(raw[:])
		return v.Unlock(ctx, pin)
	default:
		err := invalidRequest("unknown control code %#x", code)
		v.rejectInvalid(v.newRequestID(), "control", err)
		return err
	}
}

// EncodePIN packs pin into the CmdUnlock argument format.
func EncodePIN(pin int32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(pin))
	return buf
}
