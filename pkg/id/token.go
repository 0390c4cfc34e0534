// Package id produces and recognizes opaque 128-bit tokens in lowercase hex.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenLen is the hex length of a token.
const TokenLen = 32

// NewToken returns 16 random bytes as 32 lowercase hex characters. Lock
// ownership relies on tokens never colliding, so a failing entropy source panics.
func NewToken() string {
	var b [TokenLen / 2]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic("id: read random: " + err.Error())
	}
	return hex.EncodeToString(b[:])
}

// IsToken reports whether s has the NewToken shape.
func IsToken(s string) bool {
	if len(s) != TokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
