package guard

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"
)

const (
	// Window is the lifetime of a single token.
	Window = 30 * time.Second

	// TokenLength is the number of hex characters in a token.
	TokenLength = 8
)

// Generate returns the token for the window containing t.
func Generate(secret []byte, t time.Time) string {
	return tokenFor(secret, windowIndex(t))
}

// Verify reports whether token matches the window containing t or the one
// before it. Matching is case-insensitive and runs in constant time over the
// candidates.
func Verify(secret []byte, token string, t time.Time) bool {
	candidate := strings.ToUpper(strings.TrimSpace(token))
	if len(candidate) != TokenLength {
		return false
	}

	current := windowIndex(t)
	match := 0
	for _, index := range []uint64{current, current - 1} {
		match |= subtle.ConstantTimeCompare([]byte(candidate), []byte(tokenFor(secret, index)))
	}
	return match == 1
}

// Remaining returns how long the token for t stays current.
func Remaining(t time.Time) time.Duration {
	window := int64(Window / time.Second)
	elapsed := t.Unix() % window
	return time.Duration(window-elapsed) * time.Second
}

func windowIndex(t time.Time) uint64 {
	return uint64(t.Unix() / int64(Window/time.Second))
}

func tokenFor(secret []byte, index uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], index)

	mac := hmac.New(sha256.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	return strings.ToUpper(hex.EncodeToString(sum))[:TokenLength]
}
