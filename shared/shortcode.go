package shared

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/l/I) so codes
// survive being read aloud or printed on QR labels.
const codeAlphabet = "23456789abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ"

const (
	CodeLength         = 7
	FallbackCodeLength = 21
)

// GenerateCode returns a random identifier of the given length drawn from the
// unambiguous alphabet.
func GenerateCode(length int) string {
	var sb strings.Builder
	sb.Grow(length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, _ := rand.Int(rand.Reader, max)
		sb.WriteByte(codeAlphabet[n.Int64()])
	}
	return sb.String()
}

// ValidCode reports whether every character of a caller-supplied alias is in
// the allowed alphabet and the length is within bounds.
func ValidCode(code string) bool {
	if len(code) < 3 || len(code) > 32 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return false
		}
	}
	return true
}
