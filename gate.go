package zerotrust

import (
	"crypto/subtle"
	"fmt"
)

// State is the lock state of the vault.
type State int

const (
	Locked State = iota
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "locked":
		*s = Locked
	case "unlocked":
		*s = Unlocked
	default:
		return fmt.Errorf("unknown vault state %q", string(text))
	}
	return nil
}

// accessGate owns the lock state and the credential. Every method must be
// called with the vault lock held.
type accessGate struct {
	state      State
	credential int32
}

func newAccessGate(credential int32) *accessGate {
	return &accessGate{state: Locked, credential: credential}
}

func (g *accessGate) verify(pin int32) bool {
	return subtle.ConstantTimeEq(pin, g.credential) == 1
}

// open moves the gate to Unlocked and reports whether it was already open.
func (g *accessGate) open() (refreshed bool) {
	refreshed = g.state == Unlocked
	g.state = Unlocked
	return refreshed
}

func (g *accessGate) isOpen() bool {
	return g.state == Unlocked
}

func (g *accessGate) forceLock() {
	g.state = Locked
}
