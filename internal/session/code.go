package session

import (
	"math/rand"
	"strings"
)

// CodeAlphabet omits glyphs that are easy to confuse when read aloud or
// typed: 0/O and 1/I.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a session code.
const CodeLength = 6

// NewCode returns a random shareable session code.
func NewCode() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(CodeAlphabet[rand.Intn(len(CodeAlphabet))])
	}
	return b.String()
}

// NormalizeCode uppercases and trims a code typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code could have come from NewCode.
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(CodeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
