package session

import (
	"crypto/rand"
	"math/big"
)

// Room code alphabet without look-alikes (no I, O, 0, 1)
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// DefaultCodeLength is the length of generated room codes
const DefaultCodeLength = 6

// CodeGenerator produces join codes for private sessions
type CodeGenerator interface {
	Generate() string
}

// RandomCodes draws codes from crypto/rand
type RandomCodes struct {
	Length int
}

// Generate returns a fresh random code
func (g RandomCodes) Generate() string {
	n := g.Length
	if n <= 0 {
		n = DefaultCodeLength
	}
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("session: crypto/rand unavailable: " + err.Error())
		}
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
